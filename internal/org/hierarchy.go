package org

// ReportingChain returns the ordered ancestor role codes of the given role,
// walking parent links up to the root. The starting role is excluded; the
// root role yields an empty chain. Termination is guaranteed because the
// catalog is validated cycle-free at load time.
func (c *Catalog) ReportingChain(code RoleCode) ([]RoleCode, error) {
	role, err := c.RoleByCode(code)
	if err != nil {
		return nil, err
	}

	chain := []RoleCode{}
	for role.ReportsTo != "" {
		chain = append(chain, role.ReportsTo)
		role = c.byCode[role.ReportsTo]
	}
	return chain, nil
}

// IsAncestor reports whether candidate appears in the reporting chain of the
// given role. A role is never its own ancestor.
func (c *Catalog) IsAncestor(candidate, code RoleCode) bool {
	chain, err := c.ReportingChain(code)
	if err != nil {
		return false
	}
	for _, ancestor := range chain {
		if ancestor == candidate {
			return true
		}
	}
	return false
}

// Parent returns the direct reporting parent of the given role, or false for
// the root role.
func (c *Catalog) Parent(code RoleCode) (Role, bool) {
	role, err := c.RoleByCode(code)
	if err != nil || role.ReportsTo == "" {
		return Role{}, false
	}
	return c.byCode[role.ReportsTo], true
}
