package org

// HasPermission reports whether the role may perform the action on the
// module. An exact-module grant is consulted first; the wildcard grant is a
// fallback only when no specific grant exists for the module. A grant with an
// empty action set denies everything on that module, including the wildcard
// fallback. Seniority never implies access: an unknown role, or a role
// without a matching grant, is denied.
func (c *Catalog) HasPermission(code RoleCode, module Module, action Action) bool {
	role, ok := c.byCode[code]
	if !ok {
		return false
	}

	for _, grant := range role.Grants {
		if grant.Module == module {
			return containsAction(grant.Actions, action)
		}
	}

	if module != ModuleAll {
		for _, grant := range role.Grants {
			if grant.Module == ModuleAll {
				return containsAction(grant.Actions, action)
			}
		}
	}

	return false
}

// MayApprove reports whether the role holds an explicit approval right over
// the submitter's role.
func (c *Catalog) MayApprove(approver, submitter RoleCode) bool {
	role, ok := c.byCode[approver]
	if !ok {
		return false
	}
	for _, code := range role.CanApprove {
		if code == submitter {
			return true
		}
	}
	return false
}

func containsAction(actions []Action, action Action) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
