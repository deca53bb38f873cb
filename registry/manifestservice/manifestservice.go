// Package manifestservice implements manifest PUT/GET/DELETE (spec §4.E),
// wiring the blob store, the metadata index and registrymanifest parsing
// together the way registry/storage/registry.go wires a manifestStore, and
// registry/handlers/manifests.go drives it.
package manifestservice

import (
	"context"
	"fmt"
	"io"

	digestpkg "github.com/distribution-core/registry/digest"
	"github.com/distribution-core/registry/internal/dcontext"
	"github.com/distribution-core/registry/metadata"
	"github.com/distribution-core/registry/notifications"
	"github.com/distribution-core/registry/registry/storage"
	"github.com/distribution-core/registry/registrymanifest"
)

// DefaultMaxManifestSize is the default body-size cap for PUT manifest,
// matching spec §6.4's storage.max_manifest_size default.
const DefaultMaxManifestSize = 4 << 20

// ErrManifestTooLarge is returned when a PUT body exceeds the configured
// maximum.
type ErrManifestTooLarge struct {
	Size, Max int64
}

func (e ErrManifestTooLarge) Error() string {
	return fmt.Sprintf("manifest: body size %d exceeds maximum %d", e.Size, e.Max)
}

// ErrManifestInvalid wraps a parse failure.
type ErrManifestInvalid struct {
	Cause error
}

func (e ErrManifestInvalid) Error() string { return "manifest: invalid: " + e.Cause.Error() }
func (e ErrManifestInvalid) Unwrap() error { return e.Cause }

// ErrManifestBlobUnknown lists the referenced digests that have no
// corresponding blob, per spec §4.E step 4.
type ErrManifestBlobUnknown struct {
	Missing []digestpkg.Digest
}

func (e ErrManifestBlobUnknown) Error() string {
	return fmt.Sprintf("manifest: %d referenced blob(s) unknown", len(e.Missing))
}

// ErrDeleteRequiresDigest is returned when DeleteManifest is called with a
// tag reference: per spec §4.E, delete only accepts a digest.
type ErrDeleteRequiresDigest struct {
	Reference string
}

func (e ErrDeleteRequiresDigest) Error() string {
	return "manifest: delete requires a digest reference, got tag " + e.Reference
}

// ErrManifestUnknown is returned when a reference (tag or digest) has no
// corresponding manifest, or its stored media type doesn't match the
// caller's Accept set.
type ErrManifestUnknown struct {
	Reference string
}

func (e ErrManifestUnknown) Error() string { return "manifest: unknown: " + e.Reference }

// Service implements the manifest operations described in spec §4.E.
type Service struct {
	blobs           *storage.BlobStore
	index           metadata.Index
	maxManifestSize int64
	notifier        notifications.Listener
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithNotifier makes the Service emit push/pull/delete events to l as
// manifests are put, fetched, and deleted, wiring component E into the
// event pipeline per the domain-stack's "manifest PUT and blob commit emit
// events" requirement.
func WithNotifier(l notifications.Listener) Option {
	return func(s *Service) { s.notifier = l }
}

// New constructs a Service. maxManifestSize <= 0 uses DefaultMaxManifestSize.
func New(blobs *storage.BlobStore, index metadata.Index, maxManifestSize int64, opts ...Option) *Service {
	if maxManifestSize <= 0 {
		maxManifestSize = DefaultMaxManifestSize
	}
	s := &Service{blobs: blobs, index: index, maxManifestSize: maxManifestSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) notify(ctx context.Context, fn func(notifications.Listener) error) {
	if s.notifier == nil {
		return
	}
	if err := fn(s.notifier); err != nil {
		dcontext.GetLogger(ctx).Errorf("notifications: %v", err)
	}
}

// Result describes a manifest as returned to a caller.
type Result struct {
	Digest    digestpkg.Digest
	MediaType string
	Body      []byte
}

// PutManifest validates, stores and indexes a manifest body, implementing
// spec §4.E's eight-step put_manifest algorithm.
func (s *Service) PutManifest(ctx context.Context, repo, reference, mediaType string, body []byte) (digestpkg.Digest, error) {
	if int64(len(body)) > s.maxManifestSize {
		return "", ErrManifestTooLarge{Size: int64(len(body)), Max: s.maxManifestSize}
	}

	parsed, err := registrymanifest.Parse(mediaType, body)
	if err != nil {
		return "", ErrManifestInvalid{Cause: err}
	}

	refs := registrymanifest.ReferencedDigests(parsed)
	var missing []digestpkg.Digest
	for _, ref := range refs {
		ok, err := s.blobs.Exists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !ok {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		return "", ErrManifestBlobUnknown{Missing: missing}
	}

	desc, err := s.blobs.Put(ctx, mediaType, body)
	if err != nil {
		return "", err
	}

	if err := s.index.PutManifest(ctx, metadata.Manifest{
		Digest:     desc.Digest,
		MediaType:  mediaType,
		Repo:       repo,
		References: refs,
	}); err != nil {
		return "", err
	}

	tag := ""
	if !isDigestForm(reference) {
		if err := s.index.PutTag(ctx, repo, reference, desc.Digest); err != nil {
			return "", err
		}
		tag = reference
	}

	s.notify(ctx, func(l notifications.Listener) error {
		return l.ManifestPushed(ctx, repo, mediaType, desc.Digest, desc.Size, tag, refs)
	})

	return desc.Digest, nil
}

// GetManifest resolves reference (tag or digest) to a manifest, rejecting
// it with ErrManifestUnknown if its stored media type isn't present in
// accept (an empty accept set matches anything).
func (s *Service) GetManifest(ctx context.Context, repo, reference string, accept map[string]bool) (Result, error) {
	dgst, err := s.resolve(ctx, repo, reference)
	if err != nil {
		return Result{}, err
	}

	rec, err := s.index.GetManifest(ctx, dgst)
	if err != nil {
		return Result{}, ErrManifestUnknown{Reference: reference}
	}

	if len(accept) > 0 && !accept[rec.MediaType] {
		return Result{}, ErrManifestUnknown{Reference: reference}
	}

	rc, _, err := s.blobs.Open(ctx, dgst)
	if err != nil {
		return Result{}, ErrManifestUnknown{Reference: reference}
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return Result{}, err
	}

	tag := reference
	if isDigestForm(reference) {
		tag = ""
	}
	s.notify(ctx, func(l notifications.Listener) error {
		return l.ManifestPulled(ctx, repo, rec.MediaType, dgst, int64(len(body)), tag)
	})

	return Result{Digest: dgst, MediaType: rec.MediaType, Body: body}, nil
}

// DeleteManifest removes a manifest and every tag pointing to it. The blob
// content itself is left for the garbage collector. Per spec §4.E,
// reference must be a digest.
func (s *Service) DeleteManifest(ctx context.Context, repo, reference string) error {
	if !isDigestForm(reference) {
		return ErrDeleteRequiresDigest{Reference: reference}
	}

	dgst := digestpkg.Digest(reference)
	if err := s.index.DeleteManifest(ctx, dgst); err != nil {
		return ErrManifestUnknown{Reference: reference}
	}

	s.notify(ctx, func(l notifications.Listener) error {
		return l.ManifestDeleted(ctx, repo, dgst)
	})

	return nil
}

func (s *Service) resolve(ctx context.Context, repo, reference string) (digestpkg.Digest, error) {
	if isDigestForm(reference) {
		return digestpkg.Digest(reference), nil
	}

	dgst, err := s.index.GetTag(ctx, repo, reference)
	if err != nil {
		return "", ErrManifestUnknown{Reference: reference}
	}
	return dgst, nil
}

func isDigestForm(reference string) bool {
	return digestpkg.Digest(reference).Validate() == nil
}
