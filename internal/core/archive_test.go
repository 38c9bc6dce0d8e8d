package core

import (
	"context"
	"strings"
	"testing"

	"limscore/internal/archive"
)

func TestOpenArchiveMemoryDriver(t *testing.T) {
	t.Setenv("LIMSCORE_ARCHIVE_DRIVER", "memory")

	store, err := OpenArchive(context.Background())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if store.Driver() != archive.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
}

func TestOpenArchiveFilesystemDriver(t *testing.T) {
	t.Setenv("LIMSCORE_ARCHIVE_DRIVER", "fs")
	t.Setenv("LIMSCORE_ARCHIVE_FS_ROOT", t.TempDir())

	store, err := OpenArchive(context.Background())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if _, err := store.Put(context.Background(), "probe", strings.NewReader("ok"), archive.PutOptions{}); err != nil {
		t.Fatalf("put through fs archive: %v", err)
	}
}

func TestOpenArchiveUnknownDriver(t *testing.T) {
	t.Setenv("LIMSCORE_ARCHIVE_DRIVER", "gcs")

	if _, err := OpenArchive(context.Background()); err == nil {
		t.Fatalf("expected unknown driver to be rejected")
	}
}
