package domain

// RoleFor resolves a user's role assignment against the role definitions,
// matching kind and assay scope. Definitions without an assay scope match any
// assignment of the same kind.
func RoleFor(assignment UserRole, defs []RoleDefinition) (RoleDefinition, bool) {
	for _, def := range defs {
		if def.Kind != assignment.Role {
			continue
		}
		if def.AssayType == nil || *def.AssayType == assignment.AssayType {
			return def, true
		}
	}
	return RoleDefinition{}, false
}

// HasPermission reports whether the user may perform permissionID against
// assayType. A user holding the Admin role kind is granted everything. For all
// other roles the role's assay scope must match assayType (an empty assayType
// means the operation is not assay scoped and any matching role qualifies) and
// the role definition must carry the permission.
func HasPermission(user User, defs []RoleDefinition, permissionID, assayType string) bool {
	if !user.Active {
		return false
	}
	for _, assignment := range user.Roles {
		if assignment.Role == RoleAdmin {
			return true
		}
		def, ok := RoleFor(assignment, defs)
		if !ok {
			continue
		}
		if def.AssayType != nil && assayType != "" && *def.AssayType != assayType {
			continue
		}
		if containsPermission(def.PermissionIDs, permissionID) {
			return true
		}
	}
	return false
}

// PermissionsFor returns the union of permission ids granted by the user's
// roles for the given assay scope. An Admin assignment yields the full
// catalog.
func PermissionsFor(user User, defs []RoleDefinition, assayType string) []string {
	if !user.Active {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, assignment := range user.Roles {
		if assignment.Role == RoleAdmin {
			return AllPermissionIDs()
		}
		def, ok := RoleFor(assignment, defs)
		if !ok {
			continue
		}
		if def.AssayType != nil && assayType != "" && *def.AssayType != assayType {
			continue
		}
		for _, id := range def.PermissionIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func containsPermission(ids []string, id string) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}
