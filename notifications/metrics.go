package notifications

import (
	"fmt"
	"net/http"
	"sync"

	dockermetrics "github.com/docker/go-metrics"
)

// notificationsNamespace groups this package's counters under
// registry_notifications_*, the same registration idiom the teacher's own
// metrics package uses for every subsystem namespace.
var notificationsNamespace = dockermetrics.NewNamespace("registry", "notifications", nil)

var (
	eventsCounter  = notificationsNamespace.NewLabeledCounter("events", "The number of total events", "type", "endpoint")
	pendingGauge   = notificationsNamespace.NewLabeledGauge("pending", "The gauge of pending events in queue", dockermetrics.Total, "endpoint")
	statusCounter  = notificationsNamespace.NewLabeledCounter("status", "The number of status codes returned by event delivery", "code", "endpoint")
)

func init() {
	dockermetrics.Register(notificationsNamespace)
}

// EndpointMetrics track various actions taken by an endpoint, by event
// count.
type EndpointMetrics struct {
	Pending   int
	Events    int
	Successes int
	Failures  int
	Errors    int
	Statuses  map[string]int
}

// safeMetrics guards EndpointMetrics with a lock, since the event queue's
// delivery goroutine and metrics readers (ReadMetrics, tests) run
// concurrently.
type safeMetrics struct {
	EndpointName string
	EndpointMetrics
	sync.Mutex
}

func newSafeMetrics(name string) *safeMetrics {
	var sm safeMetrics
	sm.EndpointName = name
	sm.Statuses = make(map[string]int)
	return &sm
}

func (sm *safeMetrics) httpStatusListener() httpStatusListener {
	return &endpointMetricsHTTPStatusListener{safeMetrics: sm}
}

func (sm *safeMetrics) eventQueueListener() eventQueueListener {
	return &endpointMetricsEventQueueListener{safeMetrics: sm}
}

type endpointMetricsHTTPStatusListener struct {
	*safeMetrics
}

var _ httpStatusListener = &endpointMetricsHTTPStatusListener{}

func (l *endpointMetricsHTTPStatusListener) success(status int, evs ...Event) {
	l.Lock()
	defer l.Unlock()

	key := fmt.Sprintf("%d %s", status, http.StatusText(status))
	l.Statuses[key] += len(evs)
	l.Successes += len(evs)

	statusCounter.WithValues(key, l.EndpointName).Inc(1)
	eventsCounter.WithValues("Successes", l.EndpointName).Inc(float64(len(evs)))
}

func (l *endpointMetricsHTTPStatusListener) failure(status int, evs ...Event) {
	l.Lock()
	defer l.Unlock()

	key := fmt.Sprintf("%d %s", status, http.StatusText(status))
	l.Statuses[key] += len(evs)
	l.Failures += len(evs)

	statusCounter.WithValues(key, l.EndpointName).Inc(1)
	eventsCounter.WithValues("Failures", l.EndpointName).Inc(float64(len(evs)))
}

func (l *endpointMetricsHTTPStatusListener) err(err error, evs ...Event) {
	l.Lock()
	defer l.Unlock()

	l.Errors += len(evs)
	eventsCounter.WithValues("Errors", l.EndpointName).Inc(float64(len(evs)))
}

type endpointMetricsEventQueueListener struct {
	*safeMetrics
}

func (l *endpointMetricsEventQueueListener) ingress(evs ...Event) {
	l.Lock()
	defer l.Unlock()

	l.Events += len(evs)
	l.Pending += len(evs)

	eventsCounter.WithValues("Events", l.EndpointName).Inc(float64(len(evs)))
	pendingGauge.WithValues(l.EndpointName).Inc(float64(len(evs)))
}

func (l *endpointMetricsEventQueueListener) egress(evs ...Event) {
	l.Lock()
	defer l.Unlock()

	l.Pending -= len(evs)
	pendingGauge.WithValues(l.EndpointName).Dec(float64(len(evs)))
}

// endpoints is the process-wide registry of endpoints, used only to expose
// their metrics; unlike the teacher's expvar-backed registry, readers go
// through ReadMetrics rather than expvar, since this core's ambient
// observability stack is Prometheus end to end.
var endpoints struct {
	registered []*Endpoint
	mu         sync.Mutex
}

func register(e *Endpoint) {
	endpoints.mu.Lock()
	defer endpoints.mu.Unlock()
	endpoints.registered = append(endpoints.registered, e)
}
