package org

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeFor(t *testing.T) {
	catalog, _ := Load()

	tests := []struct {
		role  RoleCode
		scope Scope
	}{
		{RoleFieldOfficer, ScopeTerritory},
		{RoleTerritoryManager, ScopeTerritory},
		{RoleStateHead, ScopeState},
		{RoleZoneManager, ScopeZone},
		{RoleNationalSalesHead, ScopeUnrestricted},
		{RoleAdmin, ScopeUnrestricted},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			scope, err := catalog.ScopeFor(tt.role)
			assert.NoError(t, err)
			assert.Equal(t, tt.scope, scope)
		})
	}
}

func TestScopeForUnknownRole(t *testing.T) {
	catalog, _ := Load()

	_, err := catalog.ScopeFor("harbormaster")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

// Scope breadth must never shrink while walking a reporting chain upward.
func TestScopeWidensUpTheChain(t *testing.T) {
	catalog, _ := Load()

	rank := map[Scope]int{
		ScopeTerritory:    0,
		ScopeState:        1,
		ScopeZone:         2,
		ScopeUnrestricted: 3,
	}

	for _, role := range catalog.Roles() {
		chain, _ := catalog.ReportingChain(role.Code)
		previous, _ := catalog.ScopeFor(role.Code)
		for _, ancestorCode := range chain {
			scope, err := catalog.ScopeFor(ancestorCode)
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, rank[scope], rank[previous])
			previous = scope
		}
	}
}
