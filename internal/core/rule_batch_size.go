package core

import (
	"context"
	"fmt"
	"time"

	"limscore/pkg/domain"
)

// BatchSizeRule blocks batch creation or membership edits that put the batch
// size outside the SOP bounds in force on the batch's creation date. Prep
// batches count their own samples; analytical batches count the samples
// reached through their prep batches.
type BatchSizeRule struct{}

// Name identifies the rule in violation reports.
func (BatchSizeRule) Name() string { return "batch_size_bounds" }

// Evaluate checks every batch touched by the transaction.
func (BatchSizeRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		switch batch := change.After.(type) {
		case domain.PrepBatch:
			result.Merge(checkBatchSize(view, EntityPrepBatch, batch.ID, batch.AssayCode, len(batch.SampleIDs), batch.CreatedAt))
		case domain.AnalyticalBatch:
			result.Merge(checkBatchSize(view, EntityAnalyticalBatch, batch.ID, batch.AssayCode, len(memberSampleIDs(view, batch)), batch.CreatedAt))
		}
	}
	return result, nil
}

func checkBatchSize(view RuleView, entity EntityType, id, assayCode string, size int, createdAt time.Time) Result {
	assay, ok := view.FindAssayByCode(assayCode)
	if !ok {
		return Result{}
	}
	bounds, ok := domain.EffectiveBatchSize(assay, createdAt)
	if !ok {
		return Result{}
	}
	if size >= bounds.Min && size <= bounds.Max {
		return Result{}
	}
	return Result{Violations: []Violation{{
		Rule:     BatchSizeRule{}.Name(),
		Severity: SeverityBlock,
		Message:  fmt.Sprintf("batch holds %d samples, outside the %s bounds [%d, %d]", size, assayCode, bounds.Min, bounds.Max),
		Entity:   entity,
		EntityID: id,
	}}}
}
