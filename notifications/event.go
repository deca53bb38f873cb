// Package notifications implements the registry's asynchronous event
// pipeline: manifest and blob pushes, pulls, mounts, and deletes are turned
// into Events and handed to one or more HTTP endpoints, grounded on
// distribution/distribution's notifications package (bridge.go, sinks.go,
// metrics.go, and the shapes implied by http_test.go/endpoint_test.go,
// since the package's own event.go/types.go/http.go/endpoint.go were not
// present in the retrieved pack). The teacher's OpenTelemetry span
// instrumentation in bridge.go is dropped here since no other component in
// this core wires OpenTelemetry; everything else follows the teacher's
// shape, adapted to this core's plain repository-name strings and
// registry/digest.Digest in place of reference.Named/opencontainers digests.
package notifications

import (
	"errors"
	"time"

	"github.com/google/uuid"

	digestpkg "github.com/distribution-core/registry/digest"
)

// EventsMediaType is the content type the registry posts event envelopes
// with, reusing the teacher's wire media type.
const EventsMediaType = "application/vnd.docker.distribution.events.v1+json"

// Event actions, matching the wire vocabulary distribution/distribution's
// notifications.Event uses.
const (
	EventActionPush   = "push"
	EventActionPull   = "pull"
	EventActionMount  = "mount"
	EventActionDelete = "delete"
)

// ErrSinkClosed is returned by a Sink's Write method after Close.
var ErrSinkClosed = errors.New("notifications: sink closed")

// Target describes the object an event happened to.
type Target struct {
	MediaType      string             `json:"mediaType,omitempty"`
	Digest         digestpkg.Digest   `json:"digest,omitempty"`
	Size           int64              `json:"size,omitempty"`
	Repository     string             `json:"repository"`
	Tag            string             `json:"tag,omitempty"`
	FromRepository string             `json:"fromRepository,omitempty"`
	References     []digestpkg.Digest `json:"references,omitempty"`
	URL            string             `json:"url,omitempty"`
}

// ActorRecord identifies who caused the event, mirroring the teacher's
// ActorRecord.
type ActorRecord struct {
	Name string `json:"name,omitempty"`
}

// SourceRecord identifies the registry process that generated the event.
type SourceRecord struct {
	Addr       string `json:"addr,omitempty"`
	InstanceID string `json:"instanceID,omitempty"`
}

// RequestRecord carries the HTTP request metadata an event was generated
// under, built by NewRequestRecord.
type RequestRecord struct {
	ID        string `json:"id,omitempty"`
	Addr      string `json:"addr,omitempty"`
	Host      string `json:"host,omitempty"`
	Method    string `json:"method,omitempty"`
	UserAgent string `json:"useragent,omitempty"`
}

// Event is a single occurrence against a repository's manifests or blobs.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Action    string        `json:"action"`
	Target    Target        `json:"target"`
	Actor     ActorRecord   `json:"actor,omitempty"`
	Source    SourceRecord  `json:"source,omitempty"`
	Request   RequestRecord `json:"request,omitempty"`
}

// Envelope is the JSON body an HTTP sink POSTs, matching the teacher's
// multi-event batch wire format.
type Envelope struct {
	Events []Event `json:"events"`
}

// createEvent returns a new event, timestamped, with the specified action.
func createEvent(action string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Action:    action,
	}
}
