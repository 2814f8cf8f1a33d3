package org

// Scope thresholds by role level. Breadth is monotonically non-decreasing
// with level, which the catalog's strict level ascent guarantees along every
// reporting chain.
const (
	levelUnrestricted = 50
	levelZone         = 40
	levelState        = 30
)

// ScopeFor maps a role to the breadth of organizational data it may see.
// The result is a filter predicate selector for data-access collaborators;
// no filtering happens here.
func (c *Catalog) ScopeFor(code RoleCode) (Scope, error) {
	role, err := c.RoleByCode(code)
	if err != nil {
		return "", err
	}

	switch {
	case role.Level >= levelUnrestricted:
		return ScopeUnrestricted, nil
	case role.Level >= levelZone:
		return ScopeZone, nil
	case role.Level >= levelState:
		return ScopeState, nil
	default:
		return ScopeTerritory, nil
	}
}

// ScopeForPrincipal resolves the data scope of a principal's role
func (c *Catalog) ScopeForPrincipal(p Principal) (Scope, error) {
	return c.ScopeFor(p.Role)
}
