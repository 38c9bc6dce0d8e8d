package core

import (
	"context"

	"limscore/pkg/domain"
)

// QCWarningRule surfaces warning-grade QC samples on a batch reaching
// approval. Warnings do not block the commit; they tag the result so reviewers
// see what was tolerated.
type QCWarningRule struct{}

// Name identifies the rule in violation reports.
func (QCWarningRule) Name() string { return "approved_batch_qc_warnings" }

// Evaluate reports a warn violation per warning QC sample on approved batches.
func (QCWarningRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		batch, ok := change.After.(domain.AnalyticalBatch)
		if !ok || batch.Status != domain.AnalyticalApproved {
			continue
		}
		for _, qcSample := range batch.QCSamples {
			if qcSample.Result != domain.QCWarning {
				continue
			}
			result.Violations = append(result.Violations, Violation{
				Rule:     QCWarningRule{}.Name(),
				Severity: SeverityWarn,
				Message:  "QC sample " + qcSample.QCSampleID + " passed with a warning",
				Entity:   EntityAnalyticalBatch,
				EntityID: batch.ID,
			})
		}
	}
	return result, nil
}
