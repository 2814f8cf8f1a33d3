package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"org-service/internal/org"
)

func newTestRouter(t *testing.T) (*Router, *org.Catalog) {
	t.Helper()
	catalog, err := org.Load()
	assert.NoError(t, err)
	return NewRouter(catalog), catalog
}

func TestModuleFor(t *testing.T) {
	module, err := ModuleFor(TypeExpense)
	assert.NoError(t, err)
	assert.Equal(t, org.ModuleExpenses, module)

	_, err = ModuleFor("overtime")
	assert.ErrorIs(t, err, ErrUnknownRequestType)
}

func TestRouteDefaultSingleSignoff(t *testing.T) {
	router, _ := newTestRouter(t)

	chain, err := router.Route(TypePlan, org.RoleFieldOfficer, Context{})
	assert.NoError(t, err)
	assert.Equal(t, []org.RoleCode{org.RoleTerritoryManager}, chain)

	chain, err = router.Route(TypeExpense, org.RoleStateHead, Context{})
	assert.NoError(t, err)
	assert.Equal(t, []org.RoleCode{org.RoleZoneManager}, chain)
}

func TestRouteTargetChangeNeedsTwoSignoffs(t *testing.T) {
	router, _ := newTestRouter(t)

	chain, err := router.Route(TypeTargetChange, org.RoleTerritoryManager, Context{})
	assert.NoError(t, err)
	assert.Equal(t, []org.RoleCode{org.RoleStateHead, org.RoleZoneManager}, chain)
}

// A submitter near the top of the tree gets a chain shorter than the
// sign-off depth, not an error.
func TestRouteTruncatesAtRoot(t *testing.T) {
	router, _ := newTestRouter(t)

	chain, err := router.Route(TypeTargetChange, org.RoleNationalSalesHead, Context{})
	assert.NoError(t, err)
	assert.Equal(t, []org.RoleCode{org.RoleAdmin}, chain)
}

// The root role has nobody above it: its submissions auto-approve.
func TestRouteRootSubmitterEmptyChain(t *testing.T) {
	router, _ := newTestRouter(t)

	chain, err := router.Route(TypePlan, org.RoleAdmin, Context{})
	assert.NoError(t, err)
	assert.Empty(t, chain)
}

func TestRouteUnknownType(t *testing.T) {
	router, _ := newTestRouter(t)

	_, err := router.Route("sabbatical", org.RoleFieldOfficer, Context{})
	assert.ErrorIs(t, err, ErrUnknownRequestType)
}

func TestRouteUnknownSubmitter(t *testing.T) {
	router, _ := newTestRouter(t)

	_, err := router.Route(TypePlan, "lighthouse_keeper", Context{})
	assert.ErrorIs(t, err, org.ErrRoleNotFound)
}

func TestRouteAbsentSubordinateOverride(t *testing.T) {
	router, _ := newTestRouter(t)

	// Flag set: the override applies and the plan auto-approves.
	chain, err := router.Route(TypePlan, org.RoleTerritoryManager, Context{OnBehalfOfAbsentSubordinate: true})
	assert.NoError(t, err)
	assert.Empty(t, chain)

	// Flag clear: the generic hierarchy route applies.
	chain, err = router.Route(TypePlan, org.RoleTerritoryManager, Context{})
	assert.NoError(t, err)
	assert.Equal(t, []org.RoleCode{org.RoleStateHead}, chain)
}

func TestRouteOverrideScopedToTypeAndRole(t *testing.T) {
	router, _ := newTestRouter(t)

	// Same flag on an expense does nothing: the override is keyed by type.
	chain, err := router.Route(TypeExpense, org.RoleTerritoryManager, Context{OnBehalfOfAbsentSubordinate: true})
	assert.NoError(t, err)
	assert.Equal(t, []org.RoleCode{org.RoleStateHead}, chain)

	// Same flag from a field officer does nothing: the override is keyed by role.
	chain, err = router.Route(TypePlan, org.RoleFieldOfficer, Context{OnBehalfOfAbsentSubordinate: true})
	assert.NoError(t, err)
	assert.Equal(t, []org.RoleCode{org.RoleTerritoryManager}, chain)
}

func TestRouteNeverContainsSubmitter(t *testing.T) {
	router, catalog := newTestRouter(t)

	for _, role := range catalog.Roles() {
		for _, requestType := range []RequestType{TypePlan, TypeExpense, TypeClaim, TypeTargetChange} {
			chain, err := router.Route(requestType, role.Code, Context{})
			assert.NoError(t, err)
			assert.NotContains(t, chain, role.Code)

			seen := make(map[org.RoleCode]bool)
			for _, code := range chain {
				assert.False(t, seen[code], "duplicate approver %s", code)
				seen[code] = true
			}
		}
	}
}

func TestValidateChainCatchesBrokenOverride(t *testing.T) {
	router, _ := newTestRouter(t)

	// A misconfigured override that routes back to the submitter must be
	// reported, not silently repaired.
	router.overrides[overrideKey{TypeClaim, org.RoleFieldOfficer}] = func(Context) ([]org.RoleCode, bool) {
		return []org.RoleCode{org.RoleFieldOfficer}, true
	}

	_, err := router.Route(TypeClaim, org.RoleFieldOfficer, Context{})
	assert.ErrorIs(t, err, ErrRoutingConflict)

	router.overrides[overrideKey{TypeClaim, org.RoleFieldOfficer}] = func(Context) ([]org.RoleCode, bool) {
		return []org.RoleCode{org.RoleStateHead, org.RoleStateHead}, true
	}

	_, err = router.Route(TypeClaim, org.RoleFieldOfficer, Context{})
	assert.ErrorIs(t, err, ErrRoutingConflict)
}
