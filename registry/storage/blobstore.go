// Package storage implements the content-addressed blob store, resumable
// upload sessions and path layout described for the registry core, grounded
// on distribution/distribution/registry/storage's blobStore, blobWriter and
// linkedBlobStore.
package storage

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	digestpkg "github.com/distribution-core/registry/digest"
	storagedriver "github.com/distribution-core/registry/registry/storage/driver"
)

// Descriptor identifies a committed blob.
type Descriptor struct {
	Digest    digestpkg.Digest
	Size      int64
	MediaType string
}

// ErrBlobUnknown is returned when a digest has no corresponding blob.
type ErrBlobUnknown struct {
	Digest digestpkg.Digest
}

func (e ErrBlobUnknown) Error() string { return "blob unknown: " + e.Digest.String() }

// ErrDigestMismatch is returned when staged content does not hash to the
// digest the client claimed.
type ErrDigestMismatch struct {
	Expected digestpkg.Digest
	Actual   digestpkg.Digest
}

func (e ErrDigestMismatch) Error() string {
	return "digest mismatch: expected " + e.Expected.String() + ", got " + e.Actual.String()
}

// BlobStore is a write-once, content-addressed file set backed by a
// storagedriver.StorageDriver.
type BlobStore struct {
	driver storagedriver.StorageDriver
}

// NewBlobStore constructs a BlobStore over driver.
func NewBlobStore(driver storagedriver.StorageDriver) *BlobStore {
	return &BlobStore{driver: driver}
}

// Exists reports whether a blob with the given digest has been committed.
func (bs *BlobStore) Exists(ctx context.Context, dgst digestpkg.Digest) (bool, error) {
	_, err := bs.driver.Stat(ctx, blobDataPath(dgst))
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat returns the Descriptor for a committed blob, or ErrBlobUnknown.
func (bs *BlobStore) Stat(ctx context.Context, dgst digestpkg.Digest) (Descriptor, error) {
	fi, err := bs.driver.Stat(ctx, blobDataPath(dgst))
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return Descriptor{}, ErrBlobUnknown{Digest: dgst}
		}
		return Descriptor{}, err
	}
	return Descriptor{Digest: dgst, Size: fi.Size()}, nil
}

// Open returns a reader for a committed blob's content, or ErrBlobUnknown.
func (bs *BlobStore) Open(ctx context.Context, dgst digestpkg.Digest) (io.ReadCloser, Descriptor, error) {
	desc, err := bs.Stat(ctx, dgst)
	if err != nil {
		return nil, Descriptor{}, err
	}

	rc, err := bs.driver.Reader(ctx, blobDataPath(dgst), 0)
	if err != nil {
		return nil, Descriptor{}, err
	}
	return rc, desc, nil
}

// Put writes content directly as a committed blob, computing and returning
// its digest. Used for small, already-buffered objects such as manifests.
func (bs *BlobStore) Put(ctx context.Context, mediaType string, content []byte) (Descriptor, error) {
	dgst := digestpkg.FromBytes(content)

	if ok, err := bs.Exists(ctx, dgst); err != nil {
		return Descriptor{}, err
	} else if ok {
		return Descriptor{Digest: dgst, Size: int64(len(content)), MediaType: mediaType}, nil
	}

	staging := stagingPath(uuid.NewString())
	if err := bs.driver.PutContent(ctx, staging, content); err != nil {
		return Descriptor{}, err
	}

	if err := bs.commit(ctx, staging, dgst); err != nil {
		return Descriptor{}, err
	}

	return Descriptor{Digest: dgst, Size: int64(len(content)), MediaType: mediaType}, nil
}

// commit moves a staged file into place at dgst's canonical path. If the
// destination already exists, the staged file is discarded: this is the
// deduplication point described by the blob store's contract.
func (bs *BlobStore) commit(ctx context.Context, stagingFile string, dgst digestpkg.Digest) error {
	if ok, err := bs.Exists(ctx, dgst); err != nil {
		return err
	} else if ok {
		return bs.driver.Delete(ctx, stagingFile)
	}

	if err := bs.driver.Move(ctx, stagingFile, blobDataPath(dgst)); err != nil {
		return err
	}
	return nil
}

// Delete removes a blob's committed content. Used only by the garbage
// collector; callers must ensure no metadata still references dgst.
func (bs *BlobStore) Delete(ctx context.Context, dgst digestpkg.Digest) error {
	return bs.driver.Delete(ctx, blobContainerPath(dgst))
}

// BlobInfo is a committed blob's digest plus the filesystem metadata the
// garbage collector's safety horizon check needs.
type BlobInfo struct {
	Descriptor
	ModTime time.Time
}

// DeleteStaging removes an upload session's staged bytes given its path, as
// recorded in metadata.UploadSession.StagingPath. Used by the garbage
// collector when reaping expired sessions; a missing path is not an error.
func (bs *BlobStore) DeleteStaging(ctx context.Context, stagingPath string) error {
	if err := bs.driver.Delete(ctx, stagingPath); err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Enumerate walks every committed blob under the canonical algorithm's fan
// out directories and calls fn with its BlobInfo. Used only by the garbage
// collector's sweep phase.
func (bs *BlobStore) Enumerate(ctx context.Context, fn func(BlobInfo) error) error {
	root := path.Join("/blobs", string(digestpkg.Canonical))

	prefixes, err := bs.driver.List(ctx, root)
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return nil
		}
		return err
	}

	for _, prefixDir := range prefixes {
		hexDirs, err := bs.driver.List(ctx, prefixDir)
		if err != nil {
			return err
		}

		for _, hexDir := range hexDirs {
			dgst := digestpkg.Digest(string(digestpkg.Canonical) + ":" + path.Base(hexDir))
			if dgst.Validate() != nil {
				continue
			}

			fi, err := bs.driver.Stat(ctx, path.Join(hexDir, "data"))
			if err != nil {
				if _, ok := err.(storagedriver.PathNotFoundError); ok {
					continue
				}
				return err
			}

			info := BlobInfo{Descriptor: Descriptor{Digest: dgst, Size: fi.Size()}, ModTime: fi.ModTime()}
			if err := fn(info); err != nil {
				return err
			}
		}
	}

	return nil
}
