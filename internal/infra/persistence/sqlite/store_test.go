package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"limscore/pkg/domain"
)

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lims.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateAssay(domain.Assay{Code: "CAN", Name: "Cannabinoids"}); err != nil {
			return err
		}
		_, err := tx.CreateSample(domain.Sample{Status: domain.SampleReceived, RequiredTests: []string{"CAN"}})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	samples := reopened.ListSamples()
	if len(samples) != 1 || samples[0].ID != "S001" {
		t.Fatalf("expected persisted sample, got %+v", samples)
	}
	if len(reopened.ListAssays()) != 1 {
		t.Fatalf("expected persisted assay")
	}
}

func TestCorruptBucketDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lims.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateSample(domain.Sample{Status: domain.SampleReceived}); err != nil {
			return err
		}
		_, err := tx.CreateEquipment(domain.Equipment{Name: "HPLC-1", Status: domain.EquipmentActive})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if _, err := store.DB().Exec(`UPDATE state SET payload = ? WHERE bucket = 'equipment'`, []byte("{not json")); err != nil {
		t.Fatalf("corrupt bucket: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen with corrupt bucket: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if len(reopened.ListSamples()) != 1 {
		t.Fatalf("intact buckets must survive")
	}
	if len(reopened.ListEquipment()) != 0 {
		t.Fatalf("corrupt bucket must degrade to empty")
	}
	corrupt := reopened.CorruptBuckets()
	if len(corrupt) != 1 || corrupt[0] != "equipment" {
		t.Fatalf("expected corrupt bucket report, got %v", corrupt)
	}
}

func TestBlockingRuleSkipsSnapshot(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockCreates{})
	path := filepath.Join(t.TempDir(), "lims.db")
	store, err := NewStore(path, engine)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateSample(domain.Sample{Status: domain.SampleReceived})
		return err
	})
	if err == nil {
		t.Fatalf("expected blocked transaction")
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("blocked transaction must not snapshot, found %d buckets", count)
	}
}

type blockCreates struct{}

func (blockCreates) Name() string { return "block-creates" }

func (blockCreates) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	for _, change := range changes {
		if change.Action == domain.ActionCreate {
			return domain.Result{Violations: []domain.Violation{{Rule: "block-creates", Severity: domain.SeverityBlock}}}, nil
		}
	}
	return domain.Result{}, nil
}
