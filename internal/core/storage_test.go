package core

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenPersistentStoreMemoryDriver(t *testing.T) {
	t.Setenv("LIMSCORE_STORAGE_DRIVER", "memory")

	store, err := OpenPersistentStore(NewDefaultRulesEngine(), nil)
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	if err := store.View(context.Background(), func(TransactionView) error { return nil }); err != nil {
		t.Fatalf("view on fresh store: %v", err)
	}
}

func TestOpenPersistentStoreSQLiteDriver(t *testing.T) {
	t.Setenv("LIMSCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("LIMSCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "limscore.db"))

	store, err := OpenPersistentStore(NewDefaultRulesEngine(), nil)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		t.Cleanup(func() { _ = closer.Close() })
	}
	svc := NewService(store, WithClock(testClock))
	seedAssay(t, svc, "POT")
	if _, ok := svc.FindAssayByCode(context.Background(), "POT"); !ok {
		t.Fatalf("expected assay to round-trip through sqlite store")
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("LIMSCORE_STORAGE_DRIVER", "etcd")

	if _, err := OpenPersistentStore(NewDefaultRulesEngine(), nil); err == nil {
		t.Fatalf("expected unknown driver to be rejected")
	}
}
