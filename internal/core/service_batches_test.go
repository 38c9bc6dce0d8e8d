package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"limscore/pkg/domain"
)

// seedBoundedAssay creates an assay whose active SOP revision bounds batches
// to [2, 4] samples and defines a matrix spike QC type at 80-120% recovery.
func seedBoundedAssay(t *testing.T, svc *Service, code string) Assay {
	t.Helper()
	assay := seedAssay(t, svc, code)
	rev := SOPRevision{
		Version:       "1.1",
		EffectiveDate: testClock().AddDate(-1, 0, 0),
		Author:        "casey",
		Status:        domain.RevisionActive,
		Config: &SOPConfig{
			Analytes: []domain.Analyte{
				{AnalyteID: "thc", Name: "THC", Unit: "%", ReportingLimit: 0.1, EffectiveDate: testClock().AddDate(-1, 0, 0)},
			},
			QCTypes: []domain.QCType{
				{QCTypeID: "ms", Name: "Matrix Spike", Frequency: 10, LowerLimit: 80, UpperLimit: 120},
			},
			BatchSize: &domain.BatchSizeBounds{Min: 2, Max: 4},
		},
	}
	updated, _, err := svc.AddSOPRevision(context.Background(), assay.ID, rev)
	if err != nil {
		t.Fatalf("add revision: %v", err)
	}
	return updated
}

func registerSamples(t *testing.T, svc *Service, code string, n int) []string {
	t.Helper()
	var ids []string
	for i := 0; i < n; i++ {
		sample, _, err := svc.RegisterSample(context.Background(), sampleFixture(code))
		if err != nil {
			t.Fatalf("register sample: %v", err)
		}
		ids = append(ids, sample.ID)
	}
	return ids
}

func TestCreatePrepBatchEnforcesSizeBounds(t *testing.T) {
	svc := newTestService(t)
	seedBoundedAssay(t, svc, "POT")
	ids := registerSamples(t, svc, "POT", 5)

	_, _, err := svc.CreatePrepBatch(context.Background(), ids[:1], "POT", "casey")
	var blocked RuleViolationError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected undersized batch to be blocked, got %v", err)
	}
	if _, _, err := svc.CreatePrepBatch(context.Background(), ids, "POT", "casey"); !errors.As(err, &blocked) {
		t.Fatalf("expected oversized batch to be blocked, got %v", err)
	}
	// rejected batches leave no trace
	if got := len(svc.ListPrepBatches()); got != 0 {
		t.Fatalf("expected no prep batches, got %d", got)
	}
	for _, id := range ids {
		sample, _ := svc.GetSample(id)
		if sample.Status != domain.SampleReceived || sample.PrepBatchID != nil {
			t.Fatalf("expected sample %s untouched, got %+v", id, sample)
		}
	}

	batch, _, err := svc.CreatePrepBatch(context.Background(), ids[:3], "POT", "casey")
	if err != nil {
		t.Fatalf("create in-bounds batch: %v", err)
	}
	if batch.ID != "PB001" {
		t.Fatalf("expected PB001, got %s", batch.ID)
	}
	for _, id := range ids[:3] {
		sample, _ := svc.GetSample(id)
		if sample.Status != domain.SampleBatched {
			t.Fatalf("expected sample %s Batched, got %s", id, sample.Status)
		}
		if sample.PrepBatchID == nil || *sample.PrepBatchID != batch.ID {
			t.Fatalf("expected sample %s linked to %s", id, batch.ID)
		}
	}
}

func TestCreatePrepBatchUnconstrainedWithoutBounds(t *testing.T) {
	svc := newTestService(t)
	seedAssay(t, svc, "POT")
	ids := registerSamples(t, svc, "POT", 21)

	// No SOP revision and no base bounds: any batch size is acceptable.
	batch, _, err := svc.CreatePrepBatch(context.Background(), ids, "POT", "casey")
	if err != nil {
		t.Fatalf("create unbounded batch: %v", err)
	}
	if got := len(batch.SampleIDs); got != 21 {
		t.Fatalf("expected 21 members, got %d", got)
	}
}

func TestCreatePrepBatchRejectsWrongAssay(t *testing.T) {
	svc := newTestService(t)
	seedAssay(t, svc, "POT")
	seedAssay(t, svc, "PES")
	ids := registerSamples(t, svc, "POT", 2)

	if _, _, err := svc.CreatePrepBatch(context.Background(), ids, "PES", "casey"); err == nil {
		t.Fatalf("expected mismatch between required tests and batch assay to fail")
	}
	if _, _, err := svc.CreatePrepBatch(context.Background(), nil, "POT", "casey"); err == nil {
		t.Fatalf("expected empty sample set to fail")
	}
}

func TestPrepBatchLifecycle(t *testing.T) {
	svc := newTestService(t)
	seedBoundedAssay(t, svc, "POT")
	ids := registerSamples(t, svc, "POT", 3)
	batch, _, err := svc.CreatePrepBatch(context.Background(), ids, "POT", "casey")
	if err != nil {
		t.Fatalf("create prep batch: %v", err)
	}

	if _, _, err := svc.RecordExtraction(context.Background(), batch.ID); err != nil {
		t.Fatalf("record extraction: %v", err)
	}
	sample, _ := svc.GetSample(ids[0])
	if sample.Status != domain.SampleInPrep {
		t.Fatalf("expected In Prep after extraction, got %s", sample.Status)
	}

	if _, _, err := svc.AdvancePrepBatch(context.Background(), batch.ID, domain.PrepComplete); err == nil {
		t.Fatalf("expected skipping Ready for Analysis to fail")
	}
	advanced, _, err := svc.AdvancePrepBatch(context.Background(), batch.ID, domain.PrepReadyForAnalysis)
	if err != nil {
		t.Fatalf("advance to ready: %v", err)
	}
	if advanced.Status != domain.PrepReadyForAnalysis {
		t.Fatalf("unexpected status %s", advanced.Status)
	}
	sample, _ = svc.GetSample(ids[1])
	if sample.Status != domain.SampleReadyForAnalysis {
		t.Fatalf("expected member samples ready, got %s", sample.Status)
	}
	if _, _, err := svc.AdvancePrepBatch(context.Background(), batch.ID, domain.PrepComplete); err != nil {
		t.Fatalf("advance to complete: %v", err)
	}
}

func newReadyPrepBatch(t *testing.T, svc *Service, code string, n int) PrepBatch {
	t.Helper()
	ids := registerSamples(t, svc, code, n)
	batch, _, err := svc.CreatePrepBatch(context.Background(), ids, code, "casey")
	if err != nil {
		t.Fatalf("create prep batch: %v", err)
	}
	if _, _, err := svc.RecordExtraction(context.Background(), batch.ID); err != nil {
		t.Fatalf("record extraction: %v", err)
	}
	ready, _, err := svc.AdvancePrepBatch(context.Background(), batch.ID, domain.PrepReadyForAnalysis)
	if err != nil {
		t.Fatalf("advance prep batch: %v", err)
	}
	return ready
}

func TestAnalyticalBatchGates(t *testing.T) {
	svc := newTestService(t)
	seedBoundedAssay(t, svc, "POT")
	prep := newReadyPrepBatch(t, svc, "POT", 3)

	batch, _, err := svc.CreateAnalyticalBatch(context.Background(), []string{prep.ID}, "POT", "jordan", "HPLC-01")
	if err != nil {
		t.Fatalf("create analytical batch: %v", err)
	}
	if batch.ID != "AB001" {
		t.Fatalf("expected AB001, got %s", batch.ID)
	}
	sample, _ := svc.GetSample(prep.SampleIDs[0])
	if sample.Status != domain.SampleInAnalysis {
		t.Fatalf("expected In Analysis, got %s", sample.Status)
	}

	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalDataEntry); err == nil {
		t.Fatalf("expected data entry to require a generated sequence")
	}
	if _, _, err := svc.GenerateRunSequence(context.Background(), batch.ID); err != nil {
		t.Fatalf("generate sequence: %v", err)
	}
	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalDataEntry); err != nil {
		t.Fatalf("advance to data entry: %v", err)
	}

	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalQCReview); err == nil {
		t.Fatalf("expected QC review to require a data file")
	}
	if _, _, err := svc.IngestDataFile(context.Background(), batch.ID, "run-2025-03-10.cdf"); err != nil {
		t.Fatalf("ingest data file: %v", err)
	}
	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalQCReview); err != nil {
		t.Fatalf("advance to QC review: %v", err)
	}
}

func TestGenerateRunSequenceOrder(t *testing.T) {
	svc := newTestService(t)
	seedBoundedAssay(t, svc, "POT")
	prep := newReadyPrepBatch(t, svc, "POT", 2)
	batch, _, err := svc.CreateAnalyticalBatch(context.Background(), []string{prep.ID}, "POT", "jordan", "HPLC-01")
	if err != nil {
		t.Fatalf("create analytical batch: %v", err)
	}
	expected := 100.0
	actual := 95.0
	if _, _, err := svc.RecordQCSample(context.Background(), batch.ID, "ms", "THC", &expected, &actual); err != nil {
		t.Fatalf("record qc sample: %v", err)
	}

	sequence, _, err := svc.GenerateRunSequence(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("generate sequence: %v", err)
	}
	want := []string{"STD_0.1", "STD_1.0", "STD_10.0", "STD_50.0", "STD_100.0", "ab001-qc-1", "S001", "S002"}
	if !reflect.DeepEqual(sequence, want) {
		t.Fatalf("unexpected sequence:\n got %v\nwant %v", sequence, want)
	}

	again, _, err := svc.GenerateRunSequence(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("regenerate sequence: %v", err)
	}
	if !reflect.DeepEqual(sequence, again) {
		t.Fatalf("expected stable sequence, got %v then %v", sequence, again)
	}
}

func TestRecordQCSampleComputesRecovery(t *testing.T) {
	svc := newTestService(t)
	seedBoundedAssay(t, svc, "POT")
	prep := newReadyPrepBatch(t, svc, "POT", 2)
	batch, _, err := svc.CreateAnalyticalBatch(context.Background(), []string{prep.ID}, "POT", "jordan", "HPLC-01")
	if err != nil {
		t.Fatalf("create analytical batch: %v", err)
	}

	expected := 100.0
	cases := []struct {
		actual float64
		want   domain.QCResult
	}{
		{95, domain.QCPass},
		{70, domain.QCFail},
		{125, domain.QCFail},
	}
	for _, tc := range cases {
		actual := tc.actual
		recorded, _, err := svc.RecordQCSample(context.Background(), batch.ID, "ms", "THC", &expected, &actual)
		if err != nil {
			t.Fatalf("record qc sample: %v", err)
		}
		if recorded.Recovery == nil || *recorded.Recovery != tc.actual {
			t.Fatalf("expected recovery %v, got %v", tc.actual, recorded.Recovery)
		}
		if recorded.Result != tc.want {
			t.Fatalf("actual %v: expected %s, got %s", tc.actual, tc.want, recorded.Result)
		}
	}

	if _, _, err := svc.RecordQCSample(context.Background(), batch.ID, "surrogate", "THC", &expected, &expected); err == nil {
		t.Fatalf("expected unknown QC type to be rejected")
	}
}

func TestApprovalRequiresPassingQC(t *testing.T) {
	svc := newTestService(t)
	seedBoundedAssay(t, svc, "POT")
	prep := newReadyPrepBatch(t, svc, "POT", 2)
	batch, _, err := svc.CreateAnalyticalBatch(context.Background(), []string{prep.ID}, "POT", "jordan", "HPLC-01")
	if err != nil {
		t.Fatalf("create analytical batch: %v", err)
	}

	expected := 100.0
	failing := 60.0
	if _, _, err := svc.RecordQCSample(context.Background(), batch.ID, "ms", "THC", &expected, &failing); err != nil {
		t.Fatalf("record qc sample: %v", err)
	}
	if _, _, err := svc.GenerateRunSequence(context.Background(), batch.ID); err != nil {
		t.Fatalf("generate sequence: %v", err)
	}
	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalDataEntry); err != nil {
		t.Fatalf("advance to data entry: %v", err)
	}
	if _, _, err := svc.IngestDataFile(context.Background(), batch.ID, "run.cdf"); err != nil {
		t.Fatalf("ingest data file: %v", err)
	}
	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalQCReview); err != nil {
		t.Fatalf("advance to QC review: %v", err)
	}

	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalApproved); err == nil {
		t.Fatalf("expected failing QC to block approval")
	}
}

func TestApprovalCopiesResultsToSamples(t *testing.T) {
	svc := newTestService(t)
	seedBoundedAssay(t, svc, "POT")
	prep := newReadyPrepBatch(t, svc, "POT", 2)
	batch, _, err := svc.CreateAnalyticalBatch(context.Background(), []string{prep.ID}, "POT", "jordan", "HPLC-01")
	if err != nil {
		t.Fatalf("create analytical batch: %v", err)
	}

	expected := 100.0
	passing := 98.0
	if _, _, err := svc.RecordQCSample(context.Background(), batch.ID, "ms", "THC", &expected, &passing); err != nil {
		t.Fatalf("record qc sample: %v", err)
	}
	if _, _, err := svc.GenerateRunSequence(context.Background(), batch.ID); err != nil {
		t.Fatalf("generate sequence: %v", err)
	}
	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalDataEntry); err != nil {
		t.Fatalf("advance to data entry: %v", err)
	}
	if _, _, err := svc.RecordSampleResult(context.Background(), batch.ID, SampleResult{
		SampleID: "S001",
		Analyte:  "THC",
		Result:   21.4,
		Unit:     "%",
	}); err != nil {
		t.Fatalf("record sample result: %v", err)
	}
	if _, _, err := svc.IngestDataFile(context.Background(), batch.ID, "run.cdf"); err != nil {
		t.Fatalf("ingest data file: %v", err)
	}
	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalQCReview); err != nil {
		t.Fatalf("advance to QC review: %v", err)
	}
	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalApproved); err != nil {
		t.Fatalf("approve batch: %v", err)
	}

	sample, _ := svc.GetSample("S001")
	if sample.Status != domain.SampleComplete {
		t.Fatalf("expected Complete, got %s", sample.Status)
	}
	if len(sample.Results) != 1 || sample.Results[0].FinalResult != 21.4 {
		t.Fatalf("expected copied result with dilution-adjusted value, got %+v", sample.Results)
	}
	if sample.QCStatus == nil || *sample.QCStatus != domain.QCPass {
		t.Fatalf("expected QC pass on sample, got %v", sample.QCStatus)
	}
}

func TestApprovalWithWarningQCEmitsWarnings(t *testing.T) {
	svc := newTestService(t)
	assay := seedAssay(t, svc, "POT")
	// warning band inside the action bounds
	if _, _, err := svc.UpdateAssay(context.Background(), assay.ID, func(a *Assay) error {
		a.QCTypes = []domain.QCType{{QCTypeID: "ms", Name: "Matrix Spike", Frequency: 10, LowerLimit: 80, UpperLimit: 120}}
		return nil
	}); err != nil {
		t.Fatalf("seed qc types: %v", err)
	}
	prep := newReadyPrepBatch(t, svc, "POT", 2)
	batch, _, err := svc.CreateAnalyticalBatch(context.Background(), []string{prep.ID}, "POT", "jordan", "HPLC-01")
	if err != nil {
		t.Fatalf("create analytical batch: %v", err)
	}

	// force a warning result onto the batch record
	if _, _, err := svc.RecordCalibration(context.Background(), batch.ID, domain.CalibrationData{}); err != nil {
		t.Fatalf("record calibration: %v", err)
	}
	if _, err := svc.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateAnalyticalBatch(batch.ID, func(b *AnalyticalBatch) error {
			b.QCSamples = append(b.QCSamples, QCSample{QCSampleID: "qc-warn", Type: "ms", Analyte: "THC", Result: domain.QCWarning, RunDate: testClock()})
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("seed warning qc: %v", err)
	}

	if _, _, err := svc.GenerateRunSequence(context.Background(), batch.ID); err != nil {
		t.Fatalf("generate sequence: %v", err)
	}
	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalDataEntry); err != nil {
		t.Fatalf("advance to data entry: %v", err)
	}
	if _, _, err := svc.IngestDataFile(context.Background(), batch.ID, "run.cdf"); err != nil {
		t.Fatalf("ingest data file: %v", err)
	}
	if _, _, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalQCReview); err != nil {
		t.Fatalf("advance to QC review: %v", err)
	}
	approved, res, err := svc.AdvanceAnalyticalBatch(context.Background(), batch.ID, domain.AnalyticalApproved)
	if err != nil {
		t.Fatalf("expected warning QC to be tolerated, got %v", err)
	}
	if approved.Status != domain.AnalyticalApproved {
		t.Fatalf("unexpected status %s", approved.Status)
	}
	if len(res.Warnings()) == 0 {
		t.Fatalf("expected warn violations on the commit result")
	}
	sample, _ := svc.GetSample(prep.SampleIDs[0])
	if sample.QCStatus == nil || *sample.QCStatus != domain.QCWarning {
		t.Fatalf("expected warning QC status on sample, got %v", sample.QCStatus)
	}
}

func TestAttachReagentAndEquipment(t *testing.T) {
	svc := newTestService(t)
	seedBoundedAssay(t, svc, "POT")
	ids := registerSamples(t, svc, "POT", 2)
	batch, _, err := svc.CreatePrepBatch(context.Background(), ids, "POT", "casey")
	if err != nil {
		t.Fatalf("create prep batch: %v", err)
	}

	usage := domain.ReagentUsage{ReagentID: "acn-lot", LotNumber: "L-42", ExpirationDate: testClock().AddDate(1, 0, 0), VolumeUsed: 10}
	for i := 0; i < 2; i++ {
		if _, _, err := svc.AttachReagent(context.Background(), batch.ID, usage); err != nil {
			t.Fatalf("attach reagent: %v", err)
		}
	}
	updated, _ := svc.GetPrepBatch(batch.ID)
	if len(updated.Reagents) != 2 {
		t.Fatalf("expected duplicate reagent attachments to be kept, got %d", len(updated.Reagents))
	}

	if _, _, err := svc.AttachEquipment(context.Background(), batch.ID, "EQ999"); err == nil {
		t.Fatalf("expected unknown equipment to be rejected")
	}
	equipment, _, err := svc.CreateEquipment(context.Background(), Equipment{Name: "Shaker"})
	if err != nil {
		t.Fatalf("create equipment: %v", err)
	}
	if _, _, err := svc.AttachEquipment(context.Background(), batch.ID, equipment.ID); err != nil {
		t.Fatalf("attach equipment: %v", err)
	}
}

func TestRecordCalibrationFitsRSquared(t *testing.T) {
	svc := newTestService(t)
	seedBoundedAssay(t, svc, "POT")
	prep := newReadyPrepBatch(t, svc, "POT", 2)
	batch, _, err := svc.CreateAnalyticalBatch(context.Background(), []string{prep.ID}, "POT", "jordan", "HPLC-01")
	if err != nil {
		t.Fatalf("create analytical batch: %v", err)
	}

	data := domain.CalibrationData{
		Curves: []domain.CalibrationCurve{{
			Analyte: "THC",
			Points: []domain.CalibrationPoint{
				{Concentration: 0.1, Response: 1.0},
				{Concentration: 1.0, Response: 10.0},
				{Concentration: 10.0, Response: 100.0},
			},
		}},
		CCV: 98.5,
	}
	updated, _, err := svc.RecordCalibration(context.Background(), batch.ID, data)
	if err != nil {
		t.Fatalf("record calibration: %v", err)
	}
	if got := updated.Calibration.Curves[0].RSquared; got < 0.9999 {
		t.Fatalf("expected near-perfect fit, got %v", got)
	}
	if updated.Calibration.CreatedDate.IsZero() {
		t.Fatalf("expected created date to default to the clock")
	}
}
