package core

import (
	"context"
	"fmt"

	"limscore/pkg/domain"
)

// StatusOrderRule blocks any update that moves a sample or batch to an
// earlier workflow status. Statuses only ever advance.
type StatusOrderRule struct{}

// Name identifies the rule in violation reports.
func (StatusOrderRule) Name() string { return "status_monotonicity" }

// Evaluate inspects before/after pairs on updated records.
func (StatusOrderRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		if change.Action != ActionUpdate || change.Before == nil || change.After == nil {
			continue
		}
		switch after := change.After.(type) {
		case domain.Sample:
			before := change.Before.(domain.Sample)
			result.Merge(checkStatusOrder(EntitySample, after.ID, before.Status.Rank(), after.Status.Rank(), string(before.Status), string(after.Status)))
		case domain.PrepBatch:
			before := change.Before.(domain.PrepBatch)
			result.Merge(checkStatusOrder(EntityPrepBatch, after.ID, before.Status.Rank(), after.Status.Rank(), string(before.Status), string(after.Status)))
		case domain.AnalyticalBatch:
			before := change.Before.(domain.AnalyticalBatch)
			result.Merge(checkStatusOrder(EntityAnalyticalBatch, after.ID, before.Status.Rank(), after.Status.Rank(), string(before.Status), string(after.Status)))
		}
	}
	return result, nil
}

func checkStatusOrder(entity EntityType, id string, beforeRank, afterRank int, beforeStatus, afterStatus string) Result {
	if afterRank >= beforeRank {
		return Result{}
	}
	return Result{Violations: []Violation{{
		Rule:     StatusOrderRule{}.Name(),
		Severity: SeverityBlock,
		Message:  fmt.Sprintf("status cannot move backwards from %s to %s", beforeStatus, afterStatus),
		Entity:   entity,
		EntityID: id,
	}}}
}
