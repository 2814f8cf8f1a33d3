package org

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaultCatalog(t *testing.T) {
	catalog, err := Load()

	assert.NoError(t, err)
	assert.NotNil(t, catalog)
	assert.Len(t, catalog.Roles(), 6)
}

func TestRoleByCode(t *testing.T) {
	catalog, _ := Load()

	role, err := catalog.RoleByCode(RoleTerritoryManager)
	assert.NoError(t, err)
	assert.Equal(t, RoleTerritoryManager, role.Code)
	assert.Equal(t, RoleStateHead, role.ReportsTo)

	_, err = catalog.RoleByCode("warehouse_gnome")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRolesOrderedJuniorFirst(t *testing.T) {
	catalog, _ := Load()

	roles := catalog.Roles()
	for i := 1; i < len(roles); i++ {
		assert.Greater(t, roles[i].Level, roles[i-1].Level,
			"roles must be ordered by ascending level")
	}
}

func TestExactlyOneRootRole(t *testing.T) {
	catalog, _ := Load()

	roots := 0
	for _, role := range catalog.Roles() {
		if role.IsRoot() {
			roots++
			assert.Equal(t, RoleAdmin, role.Code)
		}
	}
	assert.Equal(t, 1, roots)
}

func TestNewCatalogRejectsUnknownParent(t *testing.T) {
	_, err := NewCatalog([]Role{
		{Code: "intern", DisplayName: "Intern", Level: 10, ReportsTo: "ghost"},
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestNewCatalogRejectsCycle(t *testing.T) {
	_, err := NewCatalog([]Role{
		{Code: "a", DisplayName: "A", Level: 10, ReportsTo: "b"},
		{Code: "b", DisplayName: "B", Level: 20, ReportsTo: "a"},
	})

	assert.Error(t, err)
}

func TestNewCatalogRejectsNonAscendingLevels(t *testing.T) {
	_, err := NewCatalog([]Role{
		{Code: "junior", DisplayName: "Junior", Level: 30, ReportsTo: "senior"},
		{Code: "senior", DisplayName: "Senior", Level: 20},
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "level")
}

func TestNewCatalogRejectsDuplicateCodes(t *testing.T) {
	_, err := NewCatalog([]Role{
		{Code: "boss", DisplayName: "Boss", Level: 10},
		{Code: "boss", DisplayName: "Boss Again", Level: 20},
	})

	assert.Error(t, err)
}

func TestNewCatalogRejectsDuplicateModuleGrants(t *testing.T) {
	_, err := NewCatalog([]Role{
		{
			Code: "clerk", DisplayName: "Clerk", Level: 10,
			Grants: []Grant{
				{Module: ModulePlans, Actions: []Action{ActionView}},
				{Module: ModulePlans, Actions: []Action{ActionEdit}},
			},
		},
	})

	assert.Error(t, err)
}
