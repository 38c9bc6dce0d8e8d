package core

import (
	"context"
	"strings"

	"limscore/pkg/domain"
)

// RegisterSample validates and records a new sample at intake. The sample id
// is allocated by the transaction and the status is forced to Received.
func (s *Service) RegisterSample(ctx context.Context, sample Sample) (Sample, Result, error) {
	var created Sample
	res, err := s.run(ctx, "register_sample", &created.ID, func(tx domain.Transaction) error {
		if err := validateSampleInput(sample, tx.Snapshot()); err != nil {
			return err
		}
		sample.ID = tx.NextSampleID()
		sample.Status = domain.SampleReceived
		sample.PrepBatchID = nil
		sample.AnalyticalBatchID = nil
		if sample.ReceivedDate.IsZero() {
			sample.ReceivedDate = s.clock()
		}
		var err error
		created, err = tx.CreateSample(sample)
		return err
	})
	return created, res, err
}

// UpdateSample mutates a sample using the provided mutator.
func (s *Service) UpdateSample(ctx context.Context, id string, mutator func(*Sample) error) (Sample, Result, error) {
	var updated Sample
	res, err := s.run(ctx, "update_sample", &id, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateSample(id, mutator)
		return err
	})
	return updated, res, err
}

// GetSample returns a sample by id.
func (s *Service) GetSample(id string) (Sample, bool) {
	return s.store.GetSample(id)
}

// ListSamples returns all samples ordered by id.
func (s *Service) ListSamples() []Sample {
	return s.store.ListSamples()
}

// ListUnbatchedSamples returns the samples still awaiting batch assignment.
func (s *Service) ListUnbatchedSamples() []Sample {
	var out []Sample
	for _, sample := range s.store.ListSamples() {
		if sample.Status == domain.SampleReceived {
			out = append(out, sample)
		}
	}
	return out
}

func validateSampleInput(sample Sample, view domain.TransactionView) error {
	if strings.TrimSpace(sample.Name) == "" {
		return ValidationError{Field: "name", Reason: "must not be blank"}
	}
	if strings.TrimSpace(sample.ClientName) == "" {
		return ValidationError{Field: "client_name", Reason: "must not be blank"}
	}
	if !domain.ValidSampleType(sample.Type) {
		return ValidationError{Field: "type", Reason: "unknown sample type " + string(sample.Type)}
	}
	if !domain.ValidSampleCategory(sample.Category) {
		return ValidationError{Field: "category", Reason: "unknown sample category " + string(sample.Category)}
	}
	if len(sample.RequiredTests) == 0 {
		return ValidationError{Field: "required_tests", Reason: "at least one test code is required"}
	}
	for _, code := range sample.RequiredTests {
		if _, ok := view.FindAssayByCode(code); !ok {
			return ValidationError{Field: "required_tests", Reason: "unknown assay code " + code}
		}
	}
	return nil
}
