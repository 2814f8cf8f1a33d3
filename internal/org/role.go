package org

import (
	"github.com/google/uuid"
)

// RoleCode identifies a position in the sales-force hierarchy
type RoleCode string

// Role codes, junior to senior
const (
	RoleFieldOfficer      RoleCode = "field_officer"
	RoleTerritoryManager  RoleCode = "territory_manager"
	RoleStateHead         RoleCode = "state_head"
	RoleZoneManager       RoleCode = "zone_manager"
	RoleNationalSalesHead RoleCode = "national_sales_head"
	RoleAdmin             RoleCode = "admin"
)

// Module identifies an application module a permission can be granted on
type Module string

// Modules
const (
	ModulePlans       Module = "plans"
	ModuleExpenses    Module = "expenses"
	ModuleClaims      Module = "claims"
	ModuleTargets     Module = "targets"
	ModuleLiquidation Module = "liquidation"
	ModuleStock       Module = "stock"
	ModuleContacts    Module = "contacts"
	ModuleReports     Module = "reports"

	// ModuleAll is the wildcard module. A wildcard grant is consulted only
	// when the role holds no grant for the specific module being checked.
	ModuleAll Module = "all"
)

// Action is an operation a role may be granted on a module
type Action string

// Actions
const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
)

// Grant is a (module, allowed actions) pair attached to a role
type Grant struct {
	Module  Module   `json:"module"`
	Actions []Action `json:"actions"`
}

// Role is a named position in the organizational hierarchy. Roles are
// immutable data: they are defined once in the catalog table and never
// mutated at runtime.
type Role struct {
	Code        RoleCode   `json:"code"`
	DisplayName string     `json:"displayName"`
	Level       int        `json:"level"` // strictly increasing with seniority
	ReportsTo   RoleCode   `json:"reportsTo,omitempty"`
	Grants      []Grant    `json:"grants"`
	CanApprove  []RoleCode `json:"canApprove,omitempty"`
}

// IsRoot returns true if the role has no reporting parent
func (r Role) IsRoot() bool {
	return r.ReportsTo == ""
}

// Scope is the breadth of organizational data a role may see
type Scope string

// Data scopes, narrow to wide
const (
	ScopeTerritory    Scope = "territory"
	ScopeState        Scope = "state"
	ScopeZone         Scope = "zone"
	ScopeUnrestricted Scope = "unrestricted"
)

// Principal is an authenticated actor bound to exactly one role and a
// location scope. Principals are built at session start from external
// identity data and are read-only afterwards.
type Principal struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      RoleCode  `json:"role"`
	Territory string    `json:"territory,omitempty"`
	Region    string    `json:"region,omitempty"`
	Zone      string    `json:"zone,omitempty"`
	State     string    `json:"state,omitempty"`
}
