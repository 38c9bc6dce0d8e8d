package core

import (
	"context"

	"limscore/pkg/domain"
)

// SystemRoleRule blocks any change to a system role unless the same
// transaction also changes the assay that owns it. System roles exist only
// through the assay lifecycle: assay creation adds them, assay deletion
// removes them, and nothing else may touch them.
type SystemRoleRule struct{}

// Name identifies the rule in violation reports.
func (SystemRoleRule) Name() string { return "system_role_immutability" }

// Evaluate pairs each system-role change with an assay change in the same
// transaction.
func (SystemRoleRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	changedAssayCodes := map[string]bool{}
	for _, change := range changes {
		if assay, ok := assayFromChange(change); ok {
			changedAssayCodes[assay.Code] = true
		}
	}

	var result Result
	for _, change := range changes {
		role, ok := roleFromChange(change)
		if !ok || !role.IsSystemRole {
			continue
		}
		if role.AssayType != nil && changedAssayCodes[*role.AssayType] {
			continue
		}
		result.Violations = append(result.Violations, Violation{
			Rule:     SystemRoleRule{}.Name(),
			Severity: SeverityBlock,
			Message:  "system role " + role.Name + " is managed by the assay lifecycle",
			Entity:   EntityRole,
			EntityID: role.ID,
		})
	}
	return result, nil
}

func assayFromChange(change Change) (domain.Assay, bool) {
	if assay, ok := change.After.(domain.Assay); ok {
		return assay, true
	}
	if assay, ok := change.Before.(domain.Assay); ok {
		return assay, true
	}
	return domain.Assay{}, false
}

func roleFromChange(change Change) (domain.RoleDefinition, bool) {
	if role, ok := change.After.(domain.RoleDefinition); ok {
		return role, true
	}
	if role, ok := change.Before.(domain.RoleDefinition); ok {
		return role, true
	}
	return domain.RoleDefinition{}, false
}
