package core

import (
	"context"
	"fmt"
	"strings"

	"limscore/internal/qc"
	"limscore/pkg/domain"
)

// calibrationLadder is the fixed standard concentration series injected at the
// head of every instrument run sequence.
var calibrationLadder = []float64{0.1, 1.0, 10.0, 50.0, 100.0}

// CreateAnalyticalBatch groups prep batches for an instrument run. Each prep
// batch must be ready for analysis, match the assay, and not already belong to
// another analytical batch. Member samples move to In Analysis atomically.
func (s *Service) CreateAnalyticalBatch(ctx context.Context, prepBatchIDs []string, assayCode, analyst, instrument string) (AnalyticalBatch, Result, error) {
	var created AnalyticalBatch
	res, err := s.run(ctx, "create_analytical_batch", &created.ID, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		if len(prepBatchIDs) == 0 {
			return ValidationError{Field: "prep_batch_ids", Reason: "at least one prep batch is required"}
		}
		if strings.TrimSpace(analyst) == "" {
			return ValidationError{Field: "analyst", Reason: "must not be blank"}
		}
		if _, ok := view.FindAssayByCode(assayCode); !ok {
			return ErrNotFound{Entity: EntityAssay, ID: assayCode}
		}
		for _, id := range prepBatchIDs {
			prep, ok := view.FindPrepBatch(id)
			if !ok {
				return ErrNotFound{Entity: EntityPrepBatch, ID: id}
			}
			if prep.AssayCode != assayCode {
				return ValidationError{Field: "prep_batch_ids", Reason: "prep batch " + id + " runs assay " + prep.AssayCode + ", not " + assayCode}
			}
			if prep.Status.Rank() < domain.PrepReadyForAnalysis.Rank() {
				return ValidationError{Field: "prep_batch_ids", Reason: "prep batch " + id + " is not ready for analysis"}
			}
			for _, existing := range view.ListAnalyticalBatches() {
				if containsID(existing.PrepBatchIDs, id) {
					return ValidationError{Field: "prep_batch_ids", Reason: "prep batch " + id + " is already in analytical batch " + existing.ID}
				}
			}
		}
		batch := AnalyticalBatch{
			Base:         Base{ID: tx.NextAnalyticalBatchID()},
			PrepBatchIDs: append([]string(nil), prepBatchIDs...),
			AssayCode:    assayCode,
			Status:       domain.AnalyticalInProgress,
			Analyst:      analyst,
			Instrument:   instrument,
		}
		var err error
		created, err = tx.CreateAnalyticalBatch(batch)
		if err != nil {
			return err
		}
		batchID := created.ID
		for _, sampleID := range memberSampleIDs(view, created) {
			if _, err := tx.UpdateSample(sampleID, func(sm *Sample) error {
				if sm.Status.Rank() < domain.SampleInAnalysis.Rank() {
					sm.Status = domain.SampleInAnalysis
				}
				sm.AnalyticalBatchID = &batchID
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return created, res, err
}

// GenerateRunSequence emits the ordered injection list for a batch:
// calibration standards, recorded QC samples, then member samples resolved
// through prep-batch membership. The order is stable for identical batch
// state. Generating a sequence unlocks advancement to Data Entry.
func (s *Service) GenerateRunSequence(ctx context.Context, batchID string) ([]string, Result, error) {
	var sequence []string
	res, err := s.run(ctx, "generate_run_sequence", &batchID, func(tx domain.Transaction) error {
		batch, ok := tx.Snapshot().FindAnalyticalBatch(batchID)
		if !ok {
			return ErrNotFound{Entity: EntityAnalyticalBatch, ID: batchID}
		}
		for _, conc := range calibrationLadder {
			sequence = append(sequence, fmt.Sprintf("STD_%.1f", conc))
		}
		for _, qcSample := range batch.QCSamples {
			sequence = append(sequence, qcSample.QCSampleID)
		}
		sequence = append(sequence, memberSampleIDs(tx.Snapshot(), batch)...)
		_, err := tx.UpdateAnalyticalBatch(batchID, func(b *AnalyticalBatch) error {
			b.SequenceGenerated = true
			return nil
		})
		return err
	})
	if err != nil {
		return nil, res, err
	}
	return sequence, res, err
}

// AdvanceAnalyticalBatch moves a batch one step forward. Data Entry requires a
// generated run sequence, QC Review requires ingested data files, and Approved
// requires no failing QC sample. Warning QC results do not block approval but
// are surfaced as warn-severity rule violations on the committed result.
// Approval cascades member samples to Complete and copies their recorded
// results onto the sample records.
func (s *Service) AdvanceAnalyticalBatch(ctx context.Context, batchID string, target domain.AnalyticalBatchStatus) (AnalyticalBatch, Result, error) {
	var updated AnalyticalBatch
	res, err := s.run(ctx, "advance_analytical_batch", &batchID, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateAnalyticalBatch(batchID, func(b *AnalyticalBatch) error {
			if target.Rank() < 0 {
				return ValidationError{Field: "status", Reason: "unknown analytical batch status " + string(target)}
			}
			if target.Rank() != b.Status.Rank()+1 {
				return ValidationError{Field: "status", Reason: "cannot move from " + string(b.Status) + " to " + string(target)}
			}
			switch target {
			case domain.AnalyticalDataEntry:
				if !b.SequenceGenerated {
					return ValidationError{Field: "status", Reason: "a run sequence must be generated before data entry"}
				}
			case domain.AnalyticalQCReview:
				if len(b.DataFiles) == 0 {
					return ValidationError{Field: "status", Reason: "at least one data file must be ingested before QC review"}
				}
			case domain.AnalyticalApproved:
				for _, qcSample := range b.QCSamples {
					if qcSample.Result == domain.QCFail {
						return ValidationError{Field: "status", Reason: "QC sample " + qcSample.QCSampleID + " failed"}
					}
				}
			}
			b.Status = target
			return nil
		})
		if err != nil {
			return err
		}
		if target == domain.AnalyticalApproved {
			return completeMemberSamples(tx, updated)
		}
		return nil
	})
	return updated, res, err
}

// RecordQCSample computes recovery from expected/actual, classifies it against
// the assay's QC type limits in force today, and appends the record to the
// batch. Blanks carry no expected value and are classified on the raw actual.
func (s *Service) RecordQCSample(ctx context.Context, batchID, qcTypeID, analyte string, expected, actual *float64) (QCSample, Result, error) {
	var recorded QCSample
	res, err := s.run(ctx, "record_qc_sample", &batchID, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		batch, ok := view.FindAnalyticalBatch(batchID)
		if !ok {
			return ErrNotFound{Entity: EntityAnalyticalBatch, ID: batchID}
		}
		if actual == nil {
			return ValidationError{Field: "actual", Reason: "a measured value is required"}
		}
		assay, ok := view.FindAssayByCode(batch.AssayCode)
		if !ok {
			return ErrNotFound{Entity: EntityAssay, ID: batch.AssayCode}
		}
		qcType, ok := findQCType(domain.ResolveEffectiveConfig(assay, s.clock()).QCTypes, qcTypeID)
		if !ok {
			return ValidationError{Field: "qc_type", Reason: "assay " + batch.AssayCode + " defines no QC type " + qcTypeID}
		}

		recorded = QCSample{
			QCSampleID: fmt.Sprintf("%s-qc-%d", strings.ToLower(batchID), len(batch.QCSamples)+1),
			Type:       qcType.QCTypeID,
			Analyte:    analyte,
			Expected:   expected,
			Actual:     actual,
			RunDate:    s.clock(),
		}
		value := *actual
		if expected != nil && *expected != 0 {
			recovery := *actual / *expected * 100
			recorded.Recovery = &recovery
			value = recovery
		}
		recorded.Result = qc.Classify(value, qc.Limits{LowerAction: qcType.LowerLimit, UpperAction: qcType.UpperLimit})

		_, err := tx.UpdateAnalyticalBatch(batchID, func(b *AnalyticalBatch) error {
			b.QCSamples = append(b.QCSamples, recorded)
			return nil
		})
		return err
	})
	return recorded, res, err
}

// RecordCalibration attaches calibration data to a batch, fitting R² for any
// curve that does not already carry one.
func (s *Service) RecordCalibration(ctx context.Context, batchID string, data domain.CalibrationData) (AnalyticalBatch, Result, error) {
	var updated AnalyticalBatch
	res, err := s.run(ctx, "record_calibration", &batchID, func(tx domain.Transaction) error {
		if data.CreatedDate.IsZero() {
			data.CreatedDate = s.clock()
		}
		for i := range data.Curves {
			if data.Curves[i].RSquared == 0 && len(data.Curves[i].Points) >= 2 {
				data.Curves[i].RSquared = fitRSquared(data.Curves[i].Points)
			}
		}
		var err error
		updated, err = tx.UpdateAnalyticalBatch(batchID, func(b *AnalyticalBatch) error {
			b.Calibration = data
			return nil
		})
		return err
	})
	return updated, res, err
}

// RecordSampleResult appends one measured analyte value for a member sample.
// The analyte must belong to the assay configuration in force today and the
// final result defaults to the raw result scaled by the dilution factor.
func (s *Service) RecordSampleResult(ctx context.Context, batchID string, result SampleResult) (AnalyticalBatch, Result, error) {
	var updated AnalyticalBatch
	res, err := s.run(ctx, "record_sample_result", &batchID, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		batch, ok := view.FindAnalyticalBatch(batchID)
		if !ok {
			return ErrNotFound{Entity: EntityAnalyticalBatch, ID: batchID}
		}
		if !containsID(memberSampleIDs(view, batch), result.SampleID) {
			return ValidationError{Field: "sample_id", Reason: "sample " + result.SampleID + " is not a member of batch " + batchID}
		}
		assay, ok := view.FindAssayByCode(batch.AssayCode)
		if !ok {
			return ErrNotFound{Entity: EntityAssay, ID: batch.AssayCode}
		}
		cfg := domain.ResolveEffectiveConfig(assay, s.clock())
		if len(cfg.Analytes) > 0 && !knownAnalyte(cfg.Analytes, result.Analyte) {
			return ValidationError{Field: "analyte", Reason: "assay " + batch.AssayCode + " defines no analyte " + result.Analyte}
		}
		if result.DilutionFactor == 0 {
			result.DilutionFactor = 1
		}
		if result.FinalResult == 0 {
			result.FinalResult = result.Result * result.DilutionFactor
		}
		var err error
		updated, err = tx.UpdateAnalyticalBatch(batchID, func(b *AnalyticalBatch) error {
			b.Results = append(b.Results, result)
			return nil
		})
		return err
	})
	return updated, res, err
}

// IngestDataFile records an instrument data file against a batch. Ingested
// files unlock advancement to QC review.
func (s *Service) IngestDataFile(ctx context.Context, batchID, filename string) (AnalyticalBatch, Result, error) {
	var updated AnalyticalBatch
	res, err := s.run(ctx, "ingest_data_file", &batchID, func(tx domain.Transaction) error {
		if strings.TrimSpace(filename) == "" {
			return ValidationError{Field: "filename", Reason: "must not be blank"}
		}
		var err error
		updated, err = tx.UpdateAnalyticalBatch(batchID, func(b *AnalyticalBatch) error {
			b.DataFiles = append(b.DataFiles, filename)
			return nil
		})
		return err
	})
	return updated, res, err
}

// GetAnalyticalBatch returns an analytical batch by id.
func (s *Service) GetAnalyticalBatch(id string) (AnalyticalBatch, bool) {
	return s.store.GetAnalyticalBatch(id)
}

// ListAnalyticalBatches returns all analytical batches ordered by id.
func (s *Service) ListAnalyticalBatches() []AnalyticalBatch {
	return s.store.ListAnalyticalBatches()
}

// memberSampleIDs resolves a batch's samples transitively through its prep
// batches, preserving prep batch order and the sample order within each.
func memberSampleIDs(view domain.TransactionView, batch AnalyticalBatch) []string {
	var out []string
	for _, prepID := range batch.PrepBatchIDs {
		if prep, ok := view.FindPrepBatch(prepID); ok {
			out = append(out, prep.SampleIDs...)
		}
	}
	return out
}

// completeMemberSamples marks every member sample Complete and copies the
// batch results and overall QC standing onto the sample records.
func completeMemberSamples(tx domain.Transaction, batch AnalyticalBatch) error {
	qcStatus := domain.QCPass
	for _, qcSample := range batch.QCSamples {
		if qcSample.Result == domain.QCWarning {
			qcStatus = domain.QCWarning
		}
	}
	for _, sampleID := range memberSampleIDs(tx.Snapshot(), batch) {
		var results []SampleResult
		for _, r := range batch.Results {
			if r.SampleID == sampleID && !r.Excluded {
				results = append(results, r)
			}
		}
		status := qcStatus
		if _, err := tx.UpdateSample(sampleID, func(sm *Sample) error {
			if sm.Status.Rank() < domain.SampleComplete.Rank() {
				sm.Status = domain.SampleComplete
			}
			sm.Results = append(sm.Results, results...)
			sm.QCStatus = &status
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}

func findQCType(types []domain.QCType, id string) (domain.QCType, bool) {
	for _, t := range types {
		if t.QCTypeID == id || t.Name == id {
			return t, true
		}
	}
	return domain.QCType{}, false
}

func knownAnalyte(analytes []domain.Analyte, name string) bool {
	for _, a := range analytes {
		if a.AnalyteID == name || a.Name == name {
			return true
		}
	}
	return false
}

// fitRSquared computes the coefficient of determination for a least-squares
// linear fit of response against concentration.
func fitRSquared(points []domain.CalibrationPoint) float64 {
	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		sumX += p.Concentration
		sumY += p.Response
		sumXY += p.Concentration * p.Response
		sumXX += p.Concentration * p.Concentration
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for _, p := range points {
		predicted := intercept + slope*p.Concentration
		ssRes += (p.Response - predicted) * (p.Response - predicted)
		ssTot += (p.Response - meanY) * (p.Response - meanY)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}
