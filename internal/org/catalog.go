package org

import (
	"errors"
	"fmt"
	"sort"
)

// ErrRoleNotFound is returned when a role code is not in the catalog
var ErrRoleNotFound = errors.New("role not found")

// Catalog is the process-wide role table. It is built and validated once at
// startup and read concurrently without synchronization; runtime mutation is
// not supported. Role or permission changes require a redeploy.
type Catalog struct {
	byCode map[RoleCode]Role
	order  []RoleCode // role codes sorted by level, junior first
}

// defaultRoles is the static definition of the sales-force hierarchy.
// Seniority is encoded by level and a reportsTo pointer, not by type.
var defaultRoles = []Role{
	{
		Code:        RoleFieldOfficer,
		DisplayName: "Field Officer",
		Level:       10,
		ReportsTo:   RoleTerritoryManager,
		Grants: []Grant{
			{Module: ModulePlans, Actions: []Action{ActionView, ActionCreate, ActionEdit}},
			{Module: ModuleExpenses, Actions: []Action{ActionView, ActionCreate}},
			{Module: ModuleClaims, Actions: []Action{ActionView, ActionCreate}},
			{Module: ModuleLiquidation, Actions: []Action{ActionView, ActionEdit}},
			{Module: ModuleStock, Actions: []Action{ActionView}},
			{Module: ModuleContacts, Actions: []Action{ActionView, ActionCreate, ActionEdit}},
		},
	},
	{
		Code:        RoleTerritoryManager,
		DisplayName: "Territory Manager",
		Level:       20,
		ReportsTo:   RoleStateHead,
		Grants: []Grant{
			{Module: ModulePlans, Actions: []Action{ActionView, ActionCreate, ActionEdit, ActionApprove}},
			{Module: ModuleExpenses, Actions: []Action{ActionView, ActionCreate, ActionApprove}},
			{Module: ModuleClaims, Actions: []Action{ActionView, ActionApprove}},
			{Module: ModuleTargets, Actions: []Action{ActionView}},
			{Module: ModuleLiquidation, Actions: []Action{ActionView, ActionEdit}},
			{Module: ModuleStock, Actions: []Action{ActionView, ActionEdit}},
			{Module: ModuleContacts, Actions: []Action{ActionView, ActionCreate, ActionEdit}},
			{Module: ModuleReports, Actions: []Action{ActionView}},
		},
		CanApprove: []RoleCode{RoleFieldOfficer},
	},
	{
		Code:        RoleStateHead,
		DisplayName: "State Head",
		Level:       30,
		ReportsTo:   RoleZoneManager,
		Grants: []Grant{
			{Module: ModulePlans, Actions: []Action{ActionView, ActionApprove}},
			{Module: ModuleExpenses, Actions: []Action{ActionView, ActionApprove}},
			{Module: ModuleClaims, Actions: []Action{ActionView, ActionApprove}},
			{Module: ModuleTargets, Actions: []Action{ActionView, ActionCreate, ActionEdit, ActionApprove}},
			{Module: ModuleStock, Actions: []Action{ActionView}},
			{Module: ModuleContacts, Actions: []Action{ActionView}},
			{Module: ModuleReports, Actions: []Action{ActionView}},
		},
		CanApprove: []RoleCode{RoleTerritoryManager, RoleFieldOfficer},
	},
	{
		Code:        RoleZoneManager,
		DisplayName: "Zone Manager",
		Level:       40,
		ReportsTo:   RoleNationalSalesHead,
		Grants: []Grant{
			{Module: ModulePlans, Actions: []Action{ActionView, ActionApprove}},
			{Module: ModuleExpenses, Actions: []Action{ActionView, ActionApprove}},
			{Module: ModuleClaims, Actions: []Action{ActionView, ActionApprove}},
			{Module: ModuleTargets, Actions: []Action{ActionView, ActionEdit, ActionApprove}},
			{Module: ModuleStock, Actions: []Action{ActionView}},
			{Module: ModuleReports, Actions: []Action{ActionView}},
		},
		CanApprove: []RoleCode{RoleStateHead, RoleTerritoryManager},
	},
	{
		Code:        RoleNationalSalesHead,
		DisplayName: "National Sales Head",
		Level:       50,
		ReportsTo:   RoleAdmin,
		Grants: []Grant{
			{Module: ModuleAll, Actions: []Action{ActionView, ActionApprove}},
			{Module: ModuleTargets, Actions: []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionApprove}},
		},
		CanApprove: []RoleCode{RoleZoneManager, RoleStateHead},
	},
	{
		Code:        RoleAdmin,
		DisplayName: "Administrator",
		Level:       60,
		Grants: []Grant{
			{Module: ModuleAll, Actions: []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionApprove}},
		},
		CanApprove: []RoleCode{RoleNationalSalesHead, RoleZoneManager},
	},
}

// Load builds and validates the default catalog. A validation failure is a
// configuration error: the caller must treat it as fatal and refuse to start.
func Load() (*Catalog, error) {
	return NewCatalog(defaultRoles)
}

// NewCatalog builds a catalog from a role table, validating that every
// declared parent exists, the parent graph is a cycle-free tree, levels
// strictly increase toward the root, and no role carries two grants for the
// same module.
func NewCatalog(roles []Role) (*Catalog, error) {
	byCode := make(map[RoleCode]Role, len(roles))
	for _, role := range roles {
		if role.Code == "" {
			return nil, errors.New("catalog: role with empty code")
		}
		if _, exists := byCode[role.Code]; exists {
			return nil, fmt.Errorf("catalog: duplicate role code %q", role.Code)
		}
		seen := make(map[Module]bool, len(role.Grants))
		for _, grant := range role.Grants {
			if seen[grant.Module] {
				return nil, fmt.Errorf("catalog: role %q has multiple grants for module %q", role.Code, grant.Module)
			}
			seen[grant.Module] = true
		}
		byCode[role.Code] = role
	}

	for _, role := range byCode {
		if role.ReportsTo == "" {
			continue
		}
		if _, ok := byCode[role.ReportsTo]; !ok {
			return nil, fmt.Errorf("catalog: role %q reports to unknown role %q", role.Code, role.ReportsTo)
		}
	}

	// Cycle check runs before the level check so a broken table names the
	// cycle, not the level violation it implies.
	for code := range byCode {
		visited := map[RoleCode]bool{code: true}
		current := byCode[code]
		for current.ReportsTo != "" {
			next := current.ReportsTo
			if visited[next] {
				return nil, fmt.Errorf("catalog: reporting cycle through role %q", next)
			}
			visited[next] = true
			current = byCode[next]
		}
	}

	for _, role := range byCode {
		if role.ReportsTo == "" {
			continue
		}
		parent := byCode[role.ReportsTo]
		if parent.Level <= role.Level {
			return nil, fmt.Errorf("catalog: role %q (level %d) must report to a more senior role, got %q (level %d)",
				role.Code, role.Level, parent.Code, parent.Level)
		}
	}

	order := make([]RoleCode, 0, len(byCode))
	for code := range byCode {
		order = append(order, code)
	}
	sort.Slice(order, func(i, j int) bool {
		return byCode[order[i]].Level < byCode[order[j]].Level
	})

	return &Catalog{byCode: byCode, order: order}, nil
}

// RoleByCode looks up a role by its code
func (c *Catalog) RoleByCode(code RoleCode) (Role, error) {
	role, ok := c.byCode[code]
	if !ok {
		return Role{}, fmt.Errorf("%w: %q", ErrRoleNotFound, code)
	}
	return role, nil
}

// Roles returns every role in the catalog, junior first
func (c *Catalog) Roles() []Role {
	roles := make([]Role, 0, len(c.order))
	for _, code := range c.order {
		roles = append(roles, c.byCode[code])
	}
	return roles
}
