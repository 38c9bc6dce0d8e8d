package core

import (
	"context"
	"fmt"

	"limscore/pkg/domain"
)

// SingleActiveRevisionRule blocks committing an assay carrying more than one
// Active SOP revision. Activating a new revision must supersede the previous
// one in the same transaction.
type SingleActiveRevisionRule struct{}

// Name identifies the rule in violation reports.
func (SingleActiveRevisionRule) Name() string { return "single_active_sop_revision" }

// Evaluate counts Active revisions on every assay touched by the transaction.
func (SingleActiveRevisionRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		assay, ok := change.After.(domain.Assay)
		if !ok {
			continue
		}
		active := 0
		for _, rev := range assay.RevisionHistory {
			if rev.Status == domain.RevisionActive {
				active++
			}
		}
		if active > 1 {
			result.Violations = append(result.Violations, Violation{
				Rule:     SingleActiveRevisionRule{}.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("assay %s carries %d active SOP revisions, at most one is allowed", assay.Code, active),
				Entity:   EntityAssay,
				EntityID: assay.ID,
			})
		}
	}
	return result, nil
}
