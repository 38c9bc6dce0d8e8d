package core

import (
	"context"

	"limscore/pkg/domain"
)

// RequiredTestsRule blocks prep batches holding a sample whose required tests
// do not include the batch assay, or referencing a sample that does not exist.
type RequiredTestsRule struct{}

// Name identifies the rule in violation reports.
func (RequiredTestsRule) Name() string { return "batch_required_tests" }

// Evaluate checks the membership of every prep batch touched by the transaction.
func (RequiredTestsRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		batch, ok := change.After.(domain.PrepBatch)
		if !ok {
			continue
		}
		for _, sampleID := range batch.SampleIDs {
			sample, found := view.FindSample(sampleID)
			if !found {
				result.Violations = append(result.Violations, Violation{
					Rule:     RequiredTestsRule{}.Name(),
					Severity: SeverityBlock,
					Message:  "batch references unknown sample " + sampleID,
					Entity:   EntityPrepBatch,
					EntityID: batch.ID,
				})
				continue
			}
			if !requiresTest(sample, batch.AssayCode) {
				result.Violations = append(result.Violations, Violation{
					Rule:     RequiredTestsRule{}.Name(),
					Severity: SeverityBlock,
					Message:  "sample " + sampleID + " does not require assay " + batch.AssayCode,
					Entity:   EntityPrepBatch,
					EntityID: batch.ID,
				})
			}
		}
	}
	return result, nil
}
