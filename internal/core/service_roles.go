package core

import (
	"context"
	"strings"

	"limscore/pkg/domain"
)

// CreateRole records a custom role. Blank names or descriptions are rejected
// and unknown permission ids are dropped. Roles created here are never system
// roles; those exist only through the assay lifecycle.
func (s *Service) CreateRole(ctx context.Context, role RoleDefinition) (RoleDefinition, Result, error) {
	var created RoleDefinition
	res, err := s.run(ctx, "create_role", &created.ID, func(tx domain.Transaction) error {
		if strings.TrimSpace(role.Name) == "" {
			return ValidationError{Field: "name", Reason: "must not be blank"}
		}
		if strings.TrimSpace(role.Description) == "" {
			return ValidationError{Field: "description", Reason: "must not be blank"}
		}
		role.IsSystemRole = false
		role.PermissionIDs = knownPermissionIDs(role.PermissionIDs)
		if role.ID == "" {
			role.ID = "role-" + strings.ToLower(strings.ReplaceAll(strings.TrimSpace(role.Name), " ", "-"))
		}
		var err error
		created, err = tx.CreateRole(role)
		return err
	})
	return created, res, err
}

// EditRole mutates a custom role. System roles are rejected unconditionally.
func (s *Service) EditRole(ctx context.Context, id string, mutator func(*RoleDefinition) error) (RoleDefinition, Result, error) {
	var updated RoleDefinition
	res, err := s.run(ctx, "edit_role", &id, func(tx domain.Transaction) error {
		if err := rejectSystemRole(tx.Snapshot(), id); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateRole(id, func(r *RoleDefinition) error {
			if err := mutator(r); err != nil {
				return err
			}
			r.IsSystemRole = false
			r.PermissionIDs = knownPermissionIDs(r.PermissionIDs)
			return nil
		})
		return err
	})
	return updated, res, err
}

// DeleteRole removes a custom role. System roles are rejected unconditionally
// and roles still assigned to a user cannot be removed.
func (s *Service) DeleteRole(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_role", &id, func(tx domain.Transaction) error {
		if err := rejectSystemRole(tx.Snapshot(), id); err != nil {
			return err
		}
		return tx.DeleteRole(id)
	})
}

// ListRoles returns all role definitions ordered by name.
func (s *Service) ListRoles() []RoleDefinition {
	return s.store.ListRoles()
}

// ListPermissions returns the fixed permission catalog.
func (s *Service) ListPermissions() []domain.Permission {
	return domain.Permissions()
}

// HasPermission reports whether the named user may perform permissionID
// against assayType. Unknown users have no permissions.
func (s *Service) HasPermission(ctx context.Context, username, permissionID, assayType string) bool {
	allowed := false
	_ = s.store.View(ctx, func(view domain.TransactionView) error {
		user, ok := view.FindUserByUsername(username)
		if !ok {
			return nil
		}
		allowed = domain.HasPermission(user, view.ListRoles(), permissionID, assayType)
		return nil
	})
	return allowed
}

func rejectSystemRole(view domain.TransactionView, id string) error {
	role, ok := view.FindRole(id)
	if !ok {
		return ErrNotFound{Entity: EntityRole, ID: id}
	}
	if role.IsSystemRole {
		return domain.InvariantViolationError{Invariant: "system role immutability", Reason: "role " + role.Name + " is managed by the assay lifecycle"}
	}
	return nil
}

func knownPermissionIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := domain.LookupPermission(id); ok {
			out = append(out, id)
		}
	}
	return out
}
