package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	digestpkg "github.com/distribution-core/registry/digest"
	storagedriver "github.com/distribution-core/registry/registry/storage/driver"
)

// DefaultMaxBlobSize is the default per-blob size cap (spec §6.4:
// storage.max_blob_size, default 5 GiB).
const DefaultMaxBlobSize = 5 << 30

// ErrRangeInvalid is returned when a PATCH's Content-Range does not start
// at the upload's current length.
type ErrRangeInvalid struct {
	Repository   string
	ID           string
	CurrentLength int64
}

func (e ErrRangeInvalid) Error() string {
	return fmt.Sprintf("upload %s/%s: range does not match current length %d", e.Repository, e.ID, e.CurrentLength)
}

// ErrBlobTooLarge is returned when an Append would push an upload session
// past its manager's configured maximum blob size.
type ErrBlobTooLarge struct {
	Repository string
	ID         string
	MaxSize    int64
}

func (e ErrBlobTooLarge) Error() string {
	return fmt.Sprintf("upload %s/%s: exceeds maximum blob size %d", e.Repository, e.ID, e.MaxSize)
}

// ErrUploadUnknown is returned for operations against a session id the
// manager does not recognize (never created, already finalized, canceled,
// or expired).
type ErrUploadUnknown struct {
	ID string
}

func (e ErrUploadUnknown) Error() string { return "upload unknown: " + e.ID }

// UploadState is the lifecycle stage of an Upload.
type UploadState int

const (
	// UploadOpen accepts PATCH, PUT, DELETE.
	UploadOpen UploadState = iota
	// UploadFinalized is terminal; the session has been promoted to a blob.
	UploadFinalized
	// UploadClosed is terminal; the session was canceled or expired.
	UploadClosed
)

// Upload is a resumable, in-progress blob write.
type Upload struct {
	ID           string
	Repository   string
	StartedAt    time.Time
	LastActivity time.Time

	mu          sync.Mutex
	state       UploadState
	store       *BlobStore
	driver      storagedriver.StorageDriver
	digester    digestpkg.Digester
	stagingPath string
	length      int64
	maxSize     int64
}

// Size returns the number of bytes committed to staging so far.
func (u *Upload) Size() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.length
}

// Append writes body to the upload's staging file starting at start, which
// must equal the upload's current length (ErrRangeInvalid otherwise), and
// feeds every byte through the session's streaming digester.
func (u *Upload) Append(ctx context.Context, start int64, body io.Reader) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != UploadOpen {
		return 0, ErrUploadUnknown{ID: u.ID}
	}
	if start != u.length {
		return 0, ErrRangeInvalid{Repository: u.Repository, ID: u.ID, CurrentLength: u.length}
	}

	if u.maxSize > 0 {
		body = io.LimitReader(body, u.maxSize-u.length+1)
	}

	w, err := u.driver.Writer(ctx, u.stagingPath, start > 0)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	tee := io.TeeReader(body, u.digester.Hash())
	n, err := io.Copy(w, tee)
	if err != nil {
		return 0, err
	}
	if err := w.Commit(ctx); err != nil {
		return 0, err
	}

	u.length += n
	u.LastActivity = time.Now()

	if u.maxSize > 0 && u.length > u.maxSize {
		return u.length, ErrBlobTooLarge{Repository: u.Repository, ID: u.ID, MaxSize: u.maxSize}
	}

	return u.length, nil
}

// Commit finalizes the upload: the digest accumulated over every Append
// call must equal expected, or ErrDigestMismatch is returned and the
// session remains Open for the client to retry or cancel.
func (u *Upload) Commit(ctx context.Context, expected digestpkg.Digest) (Descriptor, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != UploadOpen {
		return Descriptor{}, ErrUploadUnknown{ID: u.ID}
	}

	actual := u.digester.Digest()
	if actual != expected {
		return Descriptor{}, ErrDigestMismatch{Expected: expected, Actual: actual}
	}

	if err := u.store.commit(ctx, u.stagingPath, expected); err != nil {
		return Descriptor{}, err
	}

	u.state = UploadFinalized
	return Descriptor{Digest: expected, Size: u.length}, nil
}

// Cancel discards the upload's staged bytes.
func (u *Upload) Cancel(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != UploadOpen {
		return nil
	}
	u.state = UploadClosed

	if err := u.driver.Delete(ctx, u.stagingPath); err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// UploadManager creates and tracks resumable upload sessions for a single
// BlobStore. Session lookups are serialized per-id by Upload's own mutex;
// the manager's lock only protects the id→*Upload map.
type UploadManager struct {
	store   *BlobStore
	driver  storagedriver.StorageDriver
	maxSize int64

	mu      sync.Mutex
	uploads map[string]*Upload
}

// NewUploadManager constructs an UploadManager over store/driver. maxBlobSize
// optionally overrides DefaultMaxBlobSize (spec §6.4: storage.max_blob_size);
// omitted or <= 0 uses the default, and a caller that deliberately wants no
// cap should pass a very large value rather than 0.
func NewUploadManager(store *BlobStore, driver storagedriver.StorageDriver, maxBlobSize ...int64) *UploadManager {
	maxSize := int64(DefaultMaxBlobSize)
	if len(maxBlobSize) > 0 && maxBlobSize[0] > 0 {
		maxSize = maxBlobSize[0]
	}
	return &UploadManager{store: store, driver: driver, maxSize: maxSize, uploads: make(map[string]*Upload)}
}

// Create starts a new Open upload session for repo.
func (m *UploadManager) Create(ctx context.Context, repo string) *Upload {
	id := uuid.NewString()
	now := time.Now()

	u := &Upload{
		ID:           id,
		Repository:   repo,
		StartedAt:    now,
		LastActivity: now,
		state:        UploadOpen,
		store:        m.store,
		driver:       m.driver,
		digester:     digestpkg.NewCanonicalDigester(),
		stagingPath:  stagingPath(id),
		maxSize:      m.maxSize,
	}

	m.mu.Lock()
	m.uploads[id] = u
	m.mu.Unlock()
	return u
}

// Get returns the Open upload with the given id, or ErrUploadUnknown.
func (m *UploadManager) Get(id string) (*Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.uploads[id]
	if !ok {
		return nil, ErrUploadUnknown{ID: id}
	}
	return u, nil
}

// Remove drops a terminal upload's bookkeeping entry from the manager. It
// does not itself cancel or finalize the session.
func (m *UploadManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, id)
}

// ReapExpired cancels and removes every Open session whose LastActivity is
// older than ttl, returning the number reaped.
func (m *UploadManager) ReapExpired(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	var expired []*Upload
	for _, u := range m.uploads {
		u.mu.Lock()
		if u.state == UploadOpen && u.LastActivity.Before(cutoff) {
			expired = append(expired, u)
		}
		u.mu.Unlock()
	}
	m.mu.Unlock()

	for _, u := range expired {
		u.Cancel(ctx)
		m.Remove(u.ID)
	}
	return len(expired)
}
