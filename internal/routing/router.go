package routing

import (
	"errors"
	"fmt"

	"org-service/internal/org"
)

var (
	// ErrUnknownRequestType is returned for a request type with no module mapping
	ErrUnknownRequestType = errors.New("unknown request type")
	// ErrRoutingConflict is returned when a computed chain would let a role
	// approve its own submission or sign off twice. It indicates a
	// misconfigured override table and is surfaced to the operator, never
	// repaired silently.
	ErrRoutingConflict = errors.New("routing conflict")
)

// RequestType is the enumerated kind of a submitted item
type RequestType string

// Request types
const (
	TypePlan         RequestType = "plan"
	TypeExpense      RequestType = "expense"
	TypeClaim        RequestType = "claim"
	TypeTargetChange RequestType = "target_change"
)

// typeModules maps each request type to the module whose approve permission
// governs decisions on it.
var typeModules = map[RequestType]org.Module{
	TypePlan:         org.ModulePlans,
	TypeExpense:      org.ModuleExpenses,
	TypeClaim:        org.ModuleClaims,
	TypeTargetChange: org.ModuleTargets,
}

// signoffDepth is how far up the reporting chain the default route walks.
// Target changes alter commitments two levels deep and need two sign-offs;
// everything else stops at the immediate parent.
var signoffDepth = map[RequestType]int{
	TypeTargetChange: 2,
}

const defaultSignoffDepth = 1

// ModuleFor returns the module implied by a request type
func ModuleFor(t RequestType) (org.Module, error) {
	module, ok := typeModules[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRequestType, t)
	}
	return module, nil
}

// KnownType reports whether t is a routable request type
func KnownType(t RequestType) bool {
	_, ok := typeModules[t]
	return ok
}

// Context carries the ambient facts some override rules depend on
type Context struct {
	// OnBehalfOfAbsentSubordinate is set when a senior role submits in place
	// of an absent junior, the documented emergency case.
	OnBehalfOfAbsentSubordinate bool `json:"onBehalfOfAbsentSubordinate,omitempty"`
}

type overrideKey struct {
	Type      RequestType
	Submitter org.RoleCode
}

// overrideFunc produces an explicit chain for an override rule. ok=false
// means the rule does not apply under the given context and the generic
// hierarchy default is used instead.
type overrideFunc func(Context) (chain []org.RoleCode, ok bool)

// Router computes the frozen approver chain for a submission
type Router struct {
	catalog   *org.Catalog
	overrides map[overrideKey]overrideFunc
}

// NewRouter creates a router over the catalog with the documented override
// table installed. Overrides live in one table, keyed by request type and
// submitter role, so the exception list stays auditable.
func NewRouter(catalog *org.Catalog) *Router {
	r := &Router{
		catalog:   catalog,
		overrides: make(map[overrideKey]overrideFunc),
	}

	// Emergency plan submission: a manager covering for an absent
	// subordinate does not need sign-off on the subordinate's plan.
	absentSubordinate := func(ctx Context) ([]org.RoleCode, bool) {
		if !ctx.OnBehalfOfAbsentSubordinate {
			return nil, false
		}
		return []org.RoleCode{}, true
	}
	r.overrides[overrideKey{TypePlan, org.RoleTerritoryManager}] = absentSubordinate
	r.overrides[overrideKey{TypePlan, org.RoleStateHead}] = absentSubordinate

	return r
}

// Route computes the ordered approver chain for a submission. Overrides are
// consulted first; otherwise the submitter's reporting chain is truncated to
// the type's sign-off depth. An empty chain is a legal outcome and means the
// request auto-approves at submission time.
func (r *Router) Route(t RequestType, submitter org.RoleCode, ctx Context) ([]org.RoleCode, error) {
	if !KnownType(t) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequestType, t)
	}

	if fn, ok := r.overrides[overrideKey{t, submitter}]; ok {
		if chain, applies := fn(ctx); applies {
			if err := r.validateChain(t, submitter, chain); err != nil {
				return nil, err
			}
			return chain, nil
		}
	}

	full, err := r.catalog.ReportingChain(submitter)
	if err != nil {
		return nil, err
	}

	depth, ok := signoffDepth[t]
	if !ok {
		depth = defaultSignoffDepth
	}
	if len(full) > depth {
		full = full[:depth]
	}

	if err := r.validateChain(t, submitter, full); err != nil {
		return nil, err
	}
	return full, nil
}

// validateChain rejects self-approval and duplicate sign-offs. The default
// reporting-chain route cannot produce either, but every chain is checked so
// a broken override is caught at routing time.
func (r *Router) validateChain(t RequestType, submitter org.RoleCode, chain []org.RoleCode) error {
	seen := make(map[org.RoleCode]bool, len(chain))
	for _, code := range chain {
		if code == submitter {
			return fmt.Errorf("%w: role %q would approve its own %q submission", ErrRoutingConflict, submitter, t)
		}
		if seen[code] {
			return fmt.Errorf("%w: role %q appears twice in the %q chain", ErrRoutingConflict, code, t)
		}
		seen[code] = true
	}
	return nil
}
