package notifications

import (
	"net/http"
	"time"

	events "github.com/docker/go-events"
)

// EndpointConfig configures a single notification target, grounded on the
// fields endpoint_test.go exercises (Sync, Transport, Timeout, and the
// test-only registration escape hatch).
type EndpointConfig struct {
	// Timeout bounds each HTTP call the endpoint's sink makes.
	Timeout time.Duration
	// Headers are added to every request the endpoint's sink sends.
	Headers http.Header
	// Transport overrides the sink's http.Client transport, letting callers
	// supply custom TLS config.
	Transport *http.Transport
	// IgnoredMediaTypes and IgnoredActions are filtered out before an event
	// reaches the endpoint.
	IgnoredMediaTypes []string
	IgnoredActions    []string
	// Sync makes Write block until the event has actually been posted.
	// False (the default) queues events for asynchronous delivery.
	Sync bool

	// testOnlyDoNotRegister skips the package-level endpoint registry, used
	// so unit tests don't leak endpoints across test runs.
	testOnlyDoNotRegister bool
}

// Endpoint delivers events to a single HTTP listener, optionally
// asynchronously, tracking delivery metrics along the way.
type Endpoint struct {
	name    string
	url     string
	metrics *safeMetrics

	EndpointConfig
	Sink events.Sink
}

// NewEndpoint builds an Endpoint posting to url, named name for metrics and
// diagnostics.
func NewEndpoint(name, url string, config EndpointConfig) *Endpoint {
	e := &Endpoint{
		name:           name,
		url:            url,
		metrics:        newSafeMetrics(name),
		EndpointConfig: config,
	}

	var sink events.Sink = newHTTPSink(e.url, e.Timeout, e.Headers, e.Transport, e.metrics.httpStatusListener())
	sink = newIgnoredSink(sink, e.IgnoredMediaTypes, e.IgnoredActions)
	if !e.Sync {
		sink = newEventQueue(sink, e.metrics.eventQueueListener())
	}
	e.Sink = sink

	if !config.testOnlyDoNotRegister {
		register(e)
	}

	return e
}

// Name identifies the endpoint for metrics and diagnostics.
func (e *Endpoint) Name() string { return e.name }

// URL is the address events are posted to.
func (e *Endpoint) URL() string { return e.url }

// Write delivers each event to the endpoint's sink, in order, stopping at
// the first error.
func (e *Endpoint) Write(evs ...Event) error {
	for _, ev := range evs {
		if err := e.Sink.Write(ev); err != nil {
			return err
		}
	}
	return nil
}

// ReadMetrics copies the endpoint's current metrics into em.
func (e *Endpoint) ReadMetrics(em *EndpointMetrics) {
	e.metrics.Lock()
	defer e.metrics.Unlock()

	*em = e.metrics.EndpointMetrics
	em.Statuses = make(map[string]int, len(e.metrics.Statuses))
	for k, v := range e.metrics.Statuses {
		em.Statuses[k] = v
	}
}
