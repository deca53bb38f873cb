package notifications

import (
	"context"
	"net/http"

	events "github.com/docker/go-events"

	digestpkg "github.com/distribution-core/registry/digest"
	"github.com/distribution-core/registry/registry/storage"
)

// NewRequestRecord builds a RequestRecord from an inbound HTTP request,
// associating it with a request id, matching the teacher's
// notifications.NewRequestRecord.
func NewRequestRecord(id string, r *http.Request) RequestRecord {
	return RequestRecord{
		ID:        id,
		Addr:      r.RemoteAddr,
		Host:      r.Host,
		Method:    r.Method,
		UserAgent: r.UserAgent(),
	}
}

// Listener is notified of the repository actions bridge translates into
// Events, grounded on the teacher's notifications.Listener (the interface
// bridge.go implements it against), trimmed to this core's plain repository
// strings and storage.Descriptor instead of reference.Named and
// distribution.Descriptor, and with the manifest payload's own bytes taking
// the place of distribution.Manifest.
type Listener interface {
	ManifestPushed(ctx context.Context, repo string, mediaType string, dgst digestpkg.Digest, size int64, tag string, references []digestpkg.Digest) error
	ManifestPulled(ctx context.Context, repo string, mediaType string, dgst digestpkg.Digest, size int64, tag string) error
	ManifestDeleted(ctx context.Context, repo string, dgst digestpkg.Digest) error

	BlobPushed(ctx context.Context, repo string, desc storage.Descriptor) error
	BlobPulled(ctx context.Context, repo string, desc storage.Descriptor) error
	BlobMounted(ctx context.Context, repo string, desc storage.Descriptor, fromRepo string) error
	BlobDeleted(ctx context.Context, repo string, dgst digestpkg.Digest) error

	TagDeleted(ctx context.Context, repo string, tag string) error
	RepoDeleted(ctx context.Context, repo string) error
}

// URLBuilder is the subset of registry/api/v2.URLBuilder the bridge needs
// to populate an event's Target.URL.
type URLBuilder interface {
	BuildManifestURL(name, reference string) (string, error)
	BuildBlobURL(name, digest string) (string, error)
}

// bridge adapts repository-level actions into Events written to sink,
// grounded on the teacher's notifications.bridge. The teacher's
// OpenTelemetry span instrumentation is dropped; no other component in this
// core wires OpenTelemetry, so adding it here only for this package would
// be a one-off dependency with nothing to tie it together.
type bridge struct {
	ub                URLBuilder
	includeReferences bool
	actor             ActorRecord
	source            SourceRecord
	request           RequestRecord
	sink              events.Sink
}

var _ Listener = &bridge{}

// NewBridge returns a Listener that writes records to sink, using actor and
// source to stamp every event it generates.
func NewBridge(ub URLBuilder, source SourceRecord, actor ActorRecord, request RequestRecord, sink events.Sink, includeReferences bool) Listener {
	return &bridge{
		ub:                ub,
		includeReferences: includeReferences,
		actor:             actor,
		source:            source,
		request:           request,
		sink:              sink,
	}
}

func (b *bridge) ManifestPushed(ctx context.Context, repo, mediaType string, dgst digestpkg.Digest, size int64, tag string, references []digestpkg.Digest) error {
	return b.writeManifestEvent(EventActionPush, repo, mediaType, dgst, size, tag, references)
}

func (b *bridge) ManifestPulled(ctx context.Context, repo, mediaType string, dgst digestpkg.Digest, size int64, tag string) error {
	return b.writeManifestEvent(EventActionPull, repo, mediaType, dgst, size, tag, nil)
}

func (b *bridge) ManifestDeleted(ctx context.Context, repo string, dgst digestpkg.Digest) error {
	event := b.createEvent(EventActionDelete)
	event.Target.Repository = repo
	event.Target.Digest = dgst
	return b.sink.Write(*event)
}

func (b *bridge) BlobPushed(ctx context.Context, repo string, desc storage.Descriptor) error {
	return b.writeBlobEvent(EventActionPush, repo, desc, "")
}

func (b *bridge) BlobPulled(ctx context.Context, repo string, desc storage.Descriptor) error {
	return b.writeBlobEvent(EventActionPull, repo, desc, "")
}

func (b *bridge) BlobMounted(ctx context.Context, repo string, desc storage.Descriptor, fromRepo string) error {
	return b.writeBlobEvent(EventActionMount, repo, desc, fromRepo)
}

func (b *bridge) BlobDeleted(ctx context.Context, repo string, dgst digestpkg.Digest) error {
	event := b.createEvent(EventActionDelete)
	event.Target.Repository = repo
	event.Target.Digest = dgst
	return b.sink.Write(*event)
}

func (b *bridge) TagDeleted(ctx context.Context, repo, tag string) error {
	event := b.createEvent(EventActionDelete)
	event.Target.Repository = repo
	event.Target.Tag = tag
	return b.sink.Write(*event)
}

func (b *bridge) RepoDeleted(ctx context.Context, repo string) error {
	event := b.createEvent(EventActionDelete)
	event.Target.Repository = repo
	return b.sink.Write(*event)
}

func (b *bridge) writeManifestEvent(action, repo, mediaType string, dgst digestpkg.Digest, size int64, tag string, references []digestpkg.Digest) error {
	event := b.createEvent(action)
	event.Target.Repository = repo
	event.Target.MediaType = mediaType
	event.Target.Digest = dgst
	event.Target.Size = size
	event.Target.Tag = tag
	if b.includeReferences {
		event.Target.References = references
	}

	if b.ub != nil {
		url, err := b.ub.BuildManifestURL(repo, dgst.String())
		if err != nil {
			return err
		}
		event.Target.URL = url
	}

	return b.sink.Write(*event)
}

func (b *bridge) writeBlobEvent(action, repo string, desc storage.Descriptor, fromRepo string) error {
	event := b.createEvent(action)
	event.Target.Repository = repo
	event.Target.MediaType = desc.MediaType
	event.Target.Digest = desc.Digest
	event.Target.Size = desc.Size
	event.Target.FromRepository = fromRepo

	if b.ub != nil {
		url, err := b.ub.BuildBlobURL(repo, desc.Digest.String())
		if err != nil {
			return err
		}
		event.Target.URL = url
	}

	return b.sink.Write(*event)
}

// createEvent creates an event stamped with the bridge's actor, source, and
// request metadata.
func (b *bridge) createEvent(action string) *Event {
	event := createEvent(action)
	event.Source = b.source
	event.Actor = b.actor
	event.Request = b.request
	return event
}
