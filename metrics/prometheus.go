// Package metrics declares this registry's Prometheus namespaces and the
// stable metric names §6.5 requires, grounded on the teacher's
// metrics/prometheus.go (StorageNamespace/MiddlewareNamespace), extended
// with an HTTPNamespace carrying the request/upload/blob counters the
// teacher's own package doesn't define, since its metrics live one layer
// up in registry/handlers rather than in this package.
package metrics

import metrics "github.com/docker/go-metrics"

// NamespacePrefix is the namespace every metric in this registry is
// registered under.
const NamespacePrefix = "registry"

var (
	// StorageNamespace is the prometheus namespace of blob/cache related
	// operations.
	StorageNamespace = metrics.NewNamespace(NamespacePrefix, "storage", nil)

	// MiddlewareNamespace is the prometheus namespace of middleware
	// related operations.
	MiddlewareNamespace = metrics.NewNamespace(NamespacePrefix, "middleware", nil)

	// HTTPNamespace carries the front-end request metrics §6.5 names
	// explicitly: registry_requests_total, registry_request_duration_seconds,
	// registry_upload_bytes_total, registry_blob_bytes_total,
	// registry_active_uploads.
	HTTPNamespace = metrics.NewNamespace(NamespacePrefix, "", nil)
)

var (
	// RequestsTotal counts every request the API layer serves, labeled by
	// route name and response status code.
	RequestsTotal = HTTPNamespace.NewLabeledCounter("requests", "The total number of requests handled", "route", "code")

	// RequestDuration observes how long each request takes to serve,
	// labeled by route name.
	RequestDuration = HTTPNamespace.NewLabeledTimer("request_duration", "The time taken to serve a request", "route")

	// UploadBytesTotal counts bytes accepted across all blob upload PATCH
	// and PUT calls.
	UploadBytesTotal = HTTPNamespace.NewCounter("upload_bytes", "The total number of bytes accepted via blob uploads")

	// BlobBytesTotal counts bytes served from GET blob requests.
	BlobBytesTotal = HTTPNamespace.NewCounter("blob_bytes", "The total number of bytes served from blob downloads")

	// ActiveUploads gauges the number of upload sessions currently open.
	ActiveUploads = HTTPNamespace.NewGauge("active_uploads", "The number of upload sessions currently open", "")
)

func init() {
	metrics.Register(StorageNamespace)
	metrics.Register(MiddlewareNamespace)
	metrics.Register(HTTPNamespace)
}
