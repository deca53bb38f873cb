// Package driver defines the filesystem-like key/value interface the blob
// store and metadata index build on, the way
// distribution/distribution/registry/storage/driver does. Only a local
// filesystem and an in-memory (test) implementation are provided here; the
// interface is shaped to admit object-storage backends later without
// touching callers.
package driver

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Version is the storage driver interface version.
type Version string

// CurrentVersion is the current storage driver Version.
const CurrentVersion Version = "0.1"

// FileWriter is a handle to an in-progress write. Exactly one of Commit or
// Cancel must be called to release underlying resources.
type FileWriter interface {
	io.WriteCloser

	// Size returns the number of bytes written so far.
	Size() int64

	// Cancel discards the writer and any bytes written so far.
	Cancel(ctx context.Context) error

	// Commit flushes pending writes and makes the data available for
	// reading at the destination path.
	Commit(ctx context.Context) error
}

// FileInfo describes a file or directory in the store.
type FileInfo interface {
	Path() string
	Size() int64
	ModTime() time.Time
	IsDir() bool
}

// StorageDriver defines methods that a Storage Driver must implement for a
// filesystem-like key/value object store.
type StorageDriver interface {
	// Name returns the human-readable name of the driver.
	Name() string

	// GetContent retrieves the content stored at path as a []byte. Should
	// only be used for small objects.
	GetContent(ctx context.Context, path string) ([]byte, error)

	// PutContent stores content at path, replacing anything already there.
	PutContent(ctx context.Context, path string, content []byte) error

	// Reader returns an io.ReadCloser for the content stored at path,
	// starting at the given byte offset.
	Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// Writer returns a FileWriter which writes to path. If append is
	// false, any existing content at path is truncated first.
	Writer(ctx context.Context, path string, append bool) (FileWriter, error)

	// Stat returns FileInfo for path, or PathNotFoundError if it does not
	// exist.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the paths of the direct descendants of path.
	List(ctx context.Context, path string) ([]string, error)

	// Move moves sourcePath to destPath, overwriting destPath if present.
	Move(ctx context.Context, sourcePath string, destPath string) error

	// Delete recursively removes path and everything beneath it.
	Delete(ctx context.Context, path string) error
}

// PathNotFoundError is returned when operating on a path that does not
// exist.
type PathNotFoundError struct {
	Path string
}

func (e PathNotFoundError) Error() string {
	return fmt.Sprintf("storage: path not found: %s", e.Path)
}

// InvalidOffsetError is returned when reading or writing from an invalid
// offset.
type InvalidOffsetError struct {
	Path   string
	Offset int64
}

func (e InvalidOffsetError) Error() string {
	return fmt.Sprintf("storage: invalid offset %d for path %s", e.Offset, e.Path)
}

// Error wraps a driver-specific failure with the name of the driver it
// came from, so callers can log which backend misbehaved without the
// driver needing to know about logging.
type Error struct {
	DriverName string
	Enclosed   error
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %v", e.DriverName, e.Enclosed)
}

func (e Error) Unwrap() error {
	return e.Enclosed
}
