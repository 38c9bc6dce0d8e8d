package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"limscore/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(nil)
	store.SetNowFunc(func() time.Time { return time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC) })
	return store
}

func mustRun(t *testing.T, store *Store, fn func(tx Transaction) error) Result {
	t.Helper()
	res, err := store.RunInTransaction(context.Background(), fn)
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	return res
}

func TestCreateSampleAllocatesSequentialIDs(t *testing.T) {
	store := newTestStore(t)
	mustRun(t, store, func(tx Transaction) error {
		for i := 0; i < 3; i++ {
			if _, err := tx.CreateSample(Sample{Name: "s", Status: domain.SampleReceived}); err != nil {
				return err
			}
		}
		return nil
	})
	samples := store.ListSamples()
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0].ID != "S001" || samples[2].ID != "S003" {
		t.Fatalf("unexpected ids %q %q", samples[0].ID, samples[2].ID)
	}
	if samples[0].Version != 1 {
		t.Fatalf("expected version 1 on create, got %d", samples[0].Version)
	}
}

func TestSampleIDAllocationSkipsExisting(t *testing.T) {
	store := newTestStore(t)
	mustRun(t, store, func(tx Transaction) error {
		if _, err := tx.CreateSample(Sample{Base: domain.Base{ID: "S002"}, Status: domain.SampleReceived}); err != nil {
			return err
		}
		created, err := tx.CreateSample(Sample{Status: domain.SampleReceived})
		if err != nil {
			return err
		}
		// S002 occupies the size-based slot, so allocation bumps past it.
		if created.ID == "S002" {
			t.Fatalf("allocated an occupied id")
		}
		return nil
	})
}

func TestUpdateSampleBumpsVersion(t *testing.T) {
	store := newTestStore(t)
	mustRun(t, store, func(tx Transaction) error {
		_, err := tx.CreateSample(Sample{Base: domain.Base{ID: "S001"}, Status: domain.SampleReceived})
		return err
	})
	mustRun(t, store, func(tx Transaction) error {
		_, err := tx.UpdateSample("S001", func(s *Sample) error {
			s.Status = domain.SampleBatched
			return nil
		})
		return err
	})
	sample, ok := store.GetSample("S001")
	if !ok {
		t.Fatalf("sample missing")
	}
	if sample.Version != 2 || sample.Status != domain.SampleBatched {
		t.Fatalf("unexpected sample after update: %+v", sample)
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateSample(Sample{Status: domain.SampleReceived}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if len(store.ListSamples()) != 0 {
		t.Fatalf("state must not change when fn fails")
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block-everything" }

func (blockEverything) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (Result, error) {
	if len(changes) == 0 {
		return Result{}, nil
	}
	return Result{Violations: []domain.Violation{{Rule: "block-everything", Severity: domain.SeverityBlock, Message: "no"}}}, nil
}

func TestBlockingRulePreventsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	store := NewStore(engine)
	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateSample(Sample{Status: domain.SampleReceived})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	if len(store.ListSamples()) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}

func TestDeleteGuards(t *testing.T) {
	store := newTestStore(t)
	prepID := "PB001"
	mustRun(t, store, func(tx Transaction) error {
		if _, err := tx.CreateSample(Sample{Base: domain.Base{ID: "S001"}, Status: domain.SampleBatched, PrepBatchID: &prepID}); err != nil {
			return err
		}
		if _, err := tx.CreatePrepBatch(PrepBatch{Base: domain.Base{ID: prepID}, SampleIDs: []string{"S001"}, AssayCode: "CAN", Status: domain.PrepInProgress}); err != nil {
			return err
		}
		_, err := tx.CreateAnalyticalBatch(AnalyticalBatch{PrepBatchIDs: []string{prepID}, AssayCode: "CAN", Status: domain.AnalyticalInProgress})
		return err
	})
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteSample("S001")
	})
	if err == nil {
		t.Fatalf("expected delete of batched sample to fail")
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeletePrepBatch(prepID)
	})
	if err == nil {
		t.Fatalf("expected delete of referenced prep batch to fail")
	}
}

func TestNextUserIDUsesMaxSuffix(t *testing.T) {
	store := newTestStore(t)
	mustRun(t, store, func(tx Transaction) error {
		for _, id := range []string{"U001", "U002", "U007"} {
			if _, err := tx.CreateUser(User{Base: domain.Base{ID: id}, Username: "u" + id, Active: true}); err != nil {
				return err
			}
		}
		return nil
	})
	mustRun(t, store, func(tx Transaction) error {
		return tx.DeleteUser("U007")
	})
	mustRun(t, store, func(tx Transaction) error {
		created, err := tx.CreateUser(User{Username: "fresh", Active: true})
		if err != nil {
			return err
		}
		// U007 was removed, so the highest remaining suffix is 2.
		if created.ID != "U003" {
			t.Fatalf("expected U003, got %q", created.ID)
		}
		return nil
	})
}

func TestDuplicateUsernameRejected(t *testing.T) {
	store := newTestStore(t)
	mustRun(t, store, func(tx Transaction) error {
		_, err := tx.CreateUser(User{Username: "jdoe", Active: true})
		return err
	})
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateUser(User{Username: "jdoe", Active: true})
		return err
	})
	if err == nil {
		t.Fatalf("expected duplicate username to fail")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := newTestStore(t)
	mustRun(t, store, func(tx Transaction) error {
		if _, err := tx.CreateAssay(Assay{Code: "CAN", Name: "Cannabinoids"}); err != nil {
			return err
		}
		_, err := tx.CreateSample(Sample{Status: domain.SampleReceived, RequiredTests: []string{"CAN"}})
		return err
	})
	snapshot := store.ExportState()

	restored := NewStore(nil)
	restored.ImportState(snapshot)
	if len(restored.ListSamples()) != 1 || len(restored.ListAssays()) != 1 {
		t.Fatalf("round trip lost records")
	}
}

func TestImportStateRepairsDanglingReferences(t *testing.T) {
	ghost := "PB999"
	snapshot := Snapshot{
		Samples: map[string]Sample{
			"S001": {Base: domain.Base{ID: "S001"}, Status: domain.SampleBatched, PrepBatchID: &ghost},
		},
		PrepBatches: map[string]PrepBatch{
			"PB001": {Base: domain.Base{ID: "PB001"}, SampleIDs: []string{"S001", "S404"}},
		},
	}
	store := NewStore(nil)
	store.ImportState(snapshot)

	sample, ok := store.GetSample("S001")
	if !ok {
		t.Fatalf("sample missing after import")
	}
	if sample.PrepBatchID != nil {
		t.Fatalf("dangling prep batch reference must be cleared")
	}
	batch, ok := store.GetPrepBatch("PB001")
	if !ok {
		t.Fatalf("prep batch missing after import")
	}
	if len(batch.SampleIDs) != 1 || batch.SampleIDs[0] != "S001" {
		t.Fatalf("expected dangling sample ids pruned, got %v", batch.SampleIDs)
	}
}

func TestViewIsolation(t *testing.T) {
	store := newTestStore(t)
	mustRun(t, store, func(tx Transaction) error {
		_, err := tx.CreateSample(Sample{Base: domain.Base{ID: "S001"}, Status: domain.SampleReceived, RequiredTests: []string{"CAN"}})
		return err
	})
	err := store.View(context.Background(), func(view TransactionView) error {
		s, ok := view.FindSample("S001")
		if !ok {
			t.Fatalf("sample missing in view")
		}
		s.RequiredTests[0] = "mutated"
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	sample, _ := store.GetSample("S001")
	if sample.RequiredTests[0] != "CAN" {
		t.Fatalf("view mutation leaked into store state")
	}
}

func TestRegistrationLifecycle(t *testing.T) {
	store := newTestStore(t)
	mustRun(t, store, func(tx Transaction) error {
		_, err := tx.CreateRegistration(RegistrationRecord{Username: "jdoe", PasswordHash: "argon2id$..."})
		return err
	})
	err := store.View(context.Background(), func(view TransactionView) error {
		if _, ok := view.FindRegistration("jdoe"); !ok {
			t.Fatalf("registration missing")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	mustRun(t, store, func(tx Transaction) error {
		return tx.DeleteRegistration("jdoe")
	})
	_, runErr := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteRegistration("jdoe")
	})
	if runErr == nil {
		t.Fatalf("expected missing registration delete to fail")
	}
}
