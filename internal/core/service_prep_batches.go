package core

import (
	"context"
	"strings"

	"limscore/pkg/domain"
)

// CreatePrepBatch groups samples for extraction under one assay. Member
// samples must exist, be unbatched, and require the batch assay; the batch
// size rule validates the member count against the effective SOP bounds.
func (s *Service) CreatePrepBatch(ctx context.Context, sampleIDs []string, assayCode, analyst string) (PrepBatch, Result, error) {
	var created PrepBatch
	res, err := s.run(ctx, "create_prep_batch", &created.ID, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		if len(sampleIDs) == 0 {
			return ValidationError{Field: "sample_ids", Reason: "at least one sample is required"}
		}
		if strings.TrimSpace(analyst) == "" {
			return ValidationError{Field: "analyst", Reason: "must not be blank"}
		}
		if _, ok := view.FindAssayByCode(assayCode); !ok {
			return ErrNotFound{Entity: EntityAssay, ID: assayCode}
		}
		for _, id := range sampleIDs {
			sample, ok := view.FindSample(id)
			if !ok {
				return ErrNotFound{Entity: EntitySample, ID: id}
			}
			if sample.PrepBatchID != nil {
				return ValidationError{Field: "sample_ids", Reason: "sample " + id + " is already in prep batch " + *sample.PrepBatchID}
			}
			if !requiresTest(sample, assayCode) {
				return ValidationError{Field: "sample_ids", Reason: "sample " + id + " does not require assay " + assayCode}
			}
		}
		batch := PrepBatch{
			Base:      Base{ID: tx.NextPrepBatchID()},
			SampleIDs: append([]string(nil), sampleIDs...),
			AssayCode: assayCode,
			Status:    domain.PrepInProgress,
			Analyst:   analyst,
		}
		var err error
		created, err = tx.CreatePrepBatch(batch)
		if err != nil {
			return err
		}
		batchID := created.ID
		for _, id := range sampleIDs {
			if _, err := tx.UpdateSample(id, func(sm *Sample) error {
				sm.Status = domain.SampleBatched
				sm.PrepBatchID = &batchID
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return created, res, err
}

// RecordExtraction stamps the extraction date on a prep batch and moves its
// member samples into prep.
func (s *Service) RecordExtraction(ctx context.Context, batchID string) (PrepBatch, Result, error) {
	var updated PrepBatch
	res, err := s.run(ctx, "record_extraction", &batchID, func(tx domain.Transaction) error {
		now := s.clock()
		var err error
		updated, err = tx.UpdatePrepBatch(batchID, func(b *PrepBatch) error {
			if b.Status != domain.PrepInProgress {
				return ValidationError{Field: "status", Reason: "extraction is recorded while the batch is in progress"}
			}
			b.ExtractionDate = &now
			return nil
		})
		if err != nil {
			return err
		}
		return advanceMemberSamples(tx, updated.SampleIDs, domain.SampleInPrep)
	})
	return updated, res, err
}

// AdvancePrepBatch moves a prep batch to the next workflow status. Statuses
// never move backwards. Reaching Ready for Analysis cascades the member
// samples to the same readiness.
func (s *Service) AdvancePrepBatch(ctx context.Context, batchID string, target domain.PrepBatchStatus) (PrepBatch, Result, error) {
	var updated PrepBatch
	res, err := s.run(ctx, "advance_prep_batch", &batchID, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdatePrepBatch(batchID, func(b *PrepBatch) error {
			if target.Rank() < 0 {
				return ValidationError{Field: "status", Reason: "unknown prep batch status " + string(target)}
			}
			if target.Rank() != b.Status.Rank()+1 {
				return ValidationError{Field: "status", Reason: "cannot move from " + string(b.Status) + " to " + string(target)}
			}
			b.Status = target
			return nil
		})
		if err != nil {
			return err
		}
		if target == domain.PrepReadyForAnalysis {
			return advanceMemberSamples(tx, updated.SampleIDs, domain.SampleReadyForAnalysis)
		}
		return nil
	})
	return updated, res, err
}

// AttachReagent appends a reagent usage record to a prep batch. Duplicate
// attachments are permitted.
func (s *Service) AttachReagent(ctx context.Context, batchID string, usage domain.ReagentUsage) (PrepBatch, Result, error) {
	var updated PrepBatch
	res, err := s.run(ctx, "attach_reagent", &batchID, func(tx domain.Transaction) error {
		if strings.TrimSpace(usage.ReagentID) == "" {
			return ValidationError{Field: "reagent_id", Reason: "must not be blank"}
		}
		var err error
		updated, err = tx.UpdatePrepBatch(batchID, func(b *PrepBatch) error {
			b.Reagents = append(b.Reagents, usage)
			return nil
		})
		return err
	})
	return updated, res, err
}

// AttachEquipment appends an equipment reference to a prep batch. The
// equipment record must exist; duplicate attachments are permitted.
func (s *Service) AttachEquipment(ctx context.Context, batchID, equipmentID string) (PrepBatch, Result, error) {
	var updated PrepBatch
	res, err := s.run(ctx, "attach_equipment", &batchID, func(tx domain.Transaction) error {
		if _, ok := tx.Snapshot().FindEquipment(equipmentID); !ok {
			return ErrNotFound{Entity: EntityEquipment, ID: equipmentID}
		}
		var err error
		updated, err = tx.UpdatePrepBatch(batchID, func(b *PrepBatch) error {
			b.EquipmentIDs = append(b.EquipmentIDs, equipmentID)
			return nil
		})
		return err
	})
	return updated, res, err
}

// GetPrepBatch returns a prep batch by id.
func (s *Service) GetPrepBatch(id string) (PrepBatch, bool) {
	return s.store.GetPrepBatch(id)
}

// ListPrepBatches returns all prep batches ordered by id.
func (s *Service) ListPrepBatches() []PrepBatch {
	return s.store.ListPrepBatches()
}

func requiresTest(sample Sample, assayCode string) bool {
	for _, code := range sample.RequiredTests {
		if code == assayCode {
			return true
		}
	}
	return false
}

// advanceMemberSamples moves each sample to target unless it has already
// progressed past it.
func advanceMemberSamples(tx domain.Transaction, sampleIDs []string, target domain.SampleStatus) error {
	for _, id := range sampleIDs {
		if _, err := tx.UpdateSample(id, func(sm *Sample) error {
			if sm.Status.Rank() < target.Rank() {
				sm.Status = target
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
