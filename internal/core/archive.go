package core

import (
	"context"
	"fmt"
	"os"

	"limscore/internal/archive"
	archivefs "limscore/internal/infra/archive/fs"
	archivemem "limscore/internal/infra/archive/memory"
	archives3 "limscore/internal/infra/archive/s3"
)

// OpenArchive selects a document archive backend using environment variables.
// Defaults to the filesystem when unset.
//
//	LIMSCORE_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	LIMSCORE_ARCHIVE_FS_ROOT: directory root when driver=fs (default ./archivedata)
//	(S3 specific variables documented in internal/infra/archive/s3)
func OpenArchive(ctx context.Context) (archive.Store, error) {
	driver := os.Getenv("LIMSCORE_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(archive.DriverFilesystem)
	}
	switch archive.Driver(driver) {
	case archive.DriverFilesystem:
		return archivefs.New(os.Getenv("LIMSCORE_ARCHIVE_FS_ROOT"))
	case archive.DriverS3:
		return archives3.OpenFromEnv(ctx)
	case archive.DriverMemory:
		return archivemem.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}
