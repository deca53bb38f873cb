// Package metadata implements the registry's relational index —
// repositories, tags, manifests, manifest references and upload sessions —
// behind a pluggable Index interface, mirroring the factory-registration
// shape of registry/storage/driver/factory while the storage itself is
// grounded on ckmine11-registry-x's lib/pq-backed persistence layer.
package metadata

import (
	"context"
	"errors"
	"time"

	digestpkg "github.com/distribution-core/registry/digest"
)

// ErrNotFound is returned for lookups against rows that don't exist.
var ErrNotFound = errors.New("metadata: not found")

// ErrManifestUnknown is returned when a tag write references a manifest
// digest with no corresponding manifests row.
type ErrManifestUnknown struct {
	Digest digestpkg.Digest
}

func (e ErrManifestUnknown) Error() string { return "metadata: manifest unknown: " + e.Digest.String() }

// Repository is a row of the repositories table.
type Repository struct {
	Name      string
	CreatedAt time.Time
}

// Tag is a row of the tags table.
type Tag struct {
	Repo           string
	Name           string
	ManifestDigest digestpkg.Digest
	UpdatedAt      time.Time
}

// Manifest is a row of the manifests table plus its manifest_refs.
type Manifest struct {
	Digest     digestpkg.Digest
	MediaType  string
	Repo       string
	CreatedAt  time.Time
	References []digestpkg.Digest
}

// UploadSession is a row of the upload_sessions table.
type UploadSession struct {
	ID             string
	Repo           string
	Length         int64
	CreatedAt      time.Time
	LastActivityAt time.Time
	StagingPath    string
}

// Page is a keyset-paginated slice of names. More is false once the final
// page has been returned; otherwise the last entry of Names is the value to
// pass as "last" to fetch the next page.
type Page struct {
	Names []string
	More  bool
}

// Index is the registry's metadata store. Implementations must make tag
// writes and manifest writes atomic with their existence checks: a
// PutTag must not succeed if PutManifest for its digest has not already
// committed.
type Index interface {
	PutRepository(ctx context.Context, name string) error
	ListRepositories(ctx context.Context, last string, n int) (Page, error)

	PutManifest(ctx context.Context, m Manifest) error
	GetManifest(ctx context.Context, dgst digestpkg.Digest) (Manifest, error)
	DeleteManifest(ctx context.Context, dgst digestpkg.Digest) error

	// PutTag fails with ErrManifestUnknown if dgst has no manifests row.
	PutTag(ctx context.Context, repo, tag string, dgst digestpkg.Digest) error
	GetTag(ctx context.Context, repo, tag string) (digestpkg.Digest, error)
	DeleteTag(ctx context.Context, repo, tag string) error
	ListTags(ctx context.Context, repo, last string, n int) (Page, error)

	CreateUploadSession(ctx context.Context, s UploadSession) error
	TouchUploadSession(ctx context.Context, id string, length int64, at time.Time) error
	DeleteUploadSession(ctx context.Context, id string) error
	ExpiredUploadSessions(ctx context.Context, olderThan time.Time) ([]UploadSession, error)

	// ReachableManifestDigests returns every manifest digest reachable from
	// a tag, transitively through manifest_refs (for index/manifest-list
	// children). Used by the garbage collector's mark phase.
	ReachableManifestDigests(ctx context.Context) (map[digestpkg.Digest]struct{}, error)
	// AllReferencedDigests returns the digest of every manifest row plus
	// every referenced_digest value across all manifests, regardless of
	// reachability, so the collector can also preserve a manifest's own
	// body and its layers/config blobs.
	AllReferencedDigests(ctx context.Context) (map[digestpkg.Digest]struct{}, error)

	Close() error
}
