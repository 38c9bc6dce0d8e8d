package core

import (
	"fmt"
	"os"

	"limscore/internal/infra/persistence/memory"
	"limscore/internal/infra/persistence/postgres"
	"limscore/internal/infra/persistence/sqlite"
	"limscore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// corruptBucketReporter is implemented by snapshotting stores that tolerate
// undecodable buckets at startup.
type corruptBucketReporter interface {
	CorruptBuckets() []string
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	LIMSCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LIMSCORE_SQLITE_PATH: path to sqlite file (default ./limscore.db)
//	LIMSCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine, logger Logger) (PersistentStore, error) {
	if logger == nil {
		logger = NoopLogger{}
	}
	driver := os.Getenv("LIMSCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	var (
		store PersistentStore
		err   error
	)
	switch StorageDriver(driver) {
	case StorageMemory:
		store = memory.NewStore(engine)
	case StorageSQLite:
		path := os.Getenv("LIMSCORE_SQLITE_PATH")
		store, err = sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("LIMSCORE_POSTGRES_DSN")
		store, err = postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, err
	}
	if reporter, ok := store.(corruptBucketReporter); ok {
		for _, bucket := range reporter.CorruptBuckets() {
			logger.Warn("dropped undecodable state bucket", "bucket", bucket, "driver", driver)
		}
	}
	return store, nil
}
