package errcode

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

var (
	errorCodeToDescriptors = map[ErrorCode]ErrorDescriptor{}
	idToDescriptors        = map[string]ErrorDescriptor{}
	groupToDescriptors     = map[string][]ErrorDescriptor{}
)

var (
	// ErrorCodeUnknown is a generic error used as a last resort when no
	// situation-specific code applies.
	ErrorCodeUnknown = register("errcode", ErrorDescriptor{
		Value:          "UNKNOWN",
		Message:        "unknown error",
		Description:    "Generic error returned when the error does not have an API classification.",
		HTTPStatusCode: http.StatusInternalServerError,
	})

	// ErrorCodeUnsupported is returned when an operation is not supported.
	ErrorCodeUnsupported = register("errcode", ErrorDescriptor{
		Value:          "UNSUPPORTED",
		Message:        "the operation is unsupported",
		Description:    "Returned for an operation that has no implementation, such as a DELETE against a read-only repository.",
		HTTPStatusCode: http.StatusMethodNotAllowed,
	})

	// ErrorCodeUnauthorized is returned when a request requires
	// authentication that the gate did not find.
	ErrorCodeUnauthorized = register("errcode", ErrorDescriptor{
		Value:          "UNAUTHORIZED",
		Message:        "authentication required",
		Description:    "The gate could not find a principal for the request. This is usually accompanied by a Www-Authenticate challenge header.",
		HTTPStatusCode: http.StatusUnauthorized,
	})

	// ErrorCodeDenied is returned when a principal exists but lacks scope
	// for the requested action.
	ErrorCodeDenied = register("errcode", ErrorDescriptor{
		Value:          "DENIED",
		Message:        "requested access to the resource is denied",
		Description:    "The gate denied access for the operation on the named resource.",
		HTTPStatusCode: http.StatusForbidden,
	})

	// ErrorCodeTooManyRequests is returned when a client exceeds the
	// configured rate limit.
	ErrorCodeTooManyRequests = register("errcode", ErrorDescriptor{
		Value:          "TOO_MANY_REQUESTS",
		Message:        "too many requests",
		Description:    "Returned when a client exceeds the configured request rate limit.",
		HTTPStatusCode: http.StatusTooManyRequests,
	})
)

const errGroup = "registry.api.v2"

var (
	// ErrorCodeDigestInvalid is returned when an uploaded blob's content
	// does not match the provided digest.
	ErrorCodeDigestInvalid = register(errGroup, ErrorDescriptor{
		Value:          "DIGEST_INVALID",
		Message:        "provided digest did not match uploaded content",
		Description:    "When a blob is uploaded, the registry checks that the content matches the digest provided by the client.",
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeSizeInvalid is returned when an uploaded blob's content
	// length does not match the provided size.
	ErrorCodeSizeInvalid = register(errGroup, ErrorDescriptor{
		Value:          "SIZE_INVALID",
		Message:        "provided length did not match content length",
		Description:    "When a blob is uploaded, the provided size is checked against the uploaded content.",
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeRangeInvalid is returned when an upload PATCH's Content-Range
	// doesn't start where the prior chunk left off.
	ErrorCodeRangeInvalid = register(errGroup, ErrorDescriptor{
		Value:          "RANGE_INVALID",
		Message:        "invalid content range",
		Description:    "The provided Content-Range does not start immediately after the upload session's current length.",
		HTTPStatusCode: http.StatusRequestedRangeNotSatisfiable,
	})

	// ErrorCodeNameInvalid is returned for a malformed repository name.
	ErrorCodeNameInvalid = register(errGroup, ErrorDescriptor{
		Value:          "NAME_INVALID",
		Message:        "invalid repository name",
		Description:    "Invalid repository name encountered during a request.",
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeNameUnknown is returned when the repository name is not
	// known to the registry.
	ErrorCodeNameUnknown = register(errGroup, ErrorDescriptor{
		Value:          "NAME_UNKNOWN",
		Message:        "repository name not known to registry",
		Description:    "Returned if the repository named in the request is unknown to the registry.",
		HTTPStatusCode: http.StatusNotFound,
	})

	// ErrorCodeManifestUnknown is returned when the referenced manifest
	// (by tag or digest) is unknown.
	ErrorCodeManifestUnknown = register(errGroup, ErrorDescriptor{
		Value:          "MANIFEST_UNKNOWN",
		Message:        "manifest unknown",
		Description:    "Returned when the manifest identified by name and reference is unknown to the repository.",
		HTTPStatusCode: http.StatusNotFound,
	})

	// ErrorCodeManifestInvalid is returned when a manifest body fails
	// validation, other than missing blob references.
	ErrorCodeManifestInvalid = register(errGroup, ErrorDescriptor{
		Value:          "MANIFEST_INVALID",
		Message:        "manifest invalid",
		Description:    "During upload, manifests undergo validation; this error is returned for any failure not covered by a more specific code.",
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeManifestBlobUnknown is returned when a manifest references a
	// blob the store doesn't have.
	ErrorCodeManifestBlobUnknown = register(errGroup, ErrorDescriptor{
		Value:          "MANIFEST_BLOB_UNKNOWN",
		Message:        "blob unknown to registry",
		Description:    "Returned when a manifest references a blob unknown to the registry.",
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeBlobUnknown is returned when a referenced blob is unknown to
	// the registry.
	ErrorCodeBlobUnknown = register(errGroup, ErrorDescriptor{
		Value:          "BLOB_UNKNOWN",
		Message:        "blob unknown to registry",
		Description:    "Returned when a blob is unknown to the registry in the specified repository.",
		HTTPStatusCode: http.StatusNotFound,
	})

	// ErrorCodeBlobUploadUnknown is returned when an upload session id is
	// not recognized.
	ErrorCodeBlobUploadUnknown = register(errGroup, ErrorDescriptor{
		Value:          "BLOB_UPLOAD_UNKNOWN",
		Message:        "blob upload unknown to registry",
		Description:    "Returned when the referenced upload session has been cancelled, expired, or never existed.",
		HTTPStatusCode: http.StatusNotFound,
	})

	// ErrorCodeBlobUploadInvalid is returned when an upload session can no
	// longer proceed.
	ErrorCodeBlobUploadInvalid = register(errGroup, ErrorDescriptor{
		Value:          "BLOB_UPLOAD_INVALID",
		Message:        "blob upload invalid",
		Description:    "The blob upload encountered an error and can no longer proceed.",
		HTTPStatusCode: http.StatusBadRequest,
	})
)

var (
	nextCode     = 1000
	registerLock sync.Mutex
)

// Register makes the passed-in error known to the package and returns a new
// ErrorCode.
func Register(group string, descriptor ErrorDescriptor) ErrorCode {
	return register(group, descriptor)
}

func register(group string, descriptor ErrorDescriptor) ErrorCode {
	registerLock.Lock()
	defer registerLock.Unlock()

	descriptor.Code = ErrorCode(nextCode)

	if _, ok := idToDescriptors[descriptor.Value]; ok {
		panic(fmt.Sprintf("ErrorValue %q is already registered", descriptor.Value))
	}
	if _, ok := errorCodeToDescriptors[descriptor.Code]; ok {
		panic(fmt.Sprintf("ErrorCode %v is already registered", descriptor.Code))
	}

	groupToDescriptors[group] = append(groupToDescriptors[group], descriptor)
	errorCodeToDescriptors[descriptor.Code] = descriptor
	idToDescriptors[descriptor.Value] = descriptor

	nextCode++
	return descriptor.Code
}

type byValue []ErrorDescriptor

func (a byValue) Len() int           { return len(a) }
func (a byValue) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byValue) Less(i, j int) bool { return a[i].Value < a[j].Value }

// GetGroupNames returns the sorted list of registered error group names.
func GetGroupNames() []string {
	keys := []string{}
	for k := range groupToDescriptors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetErrorCodeGroup returns the named group of error descriptors, sorted by
// Value.
func GetErrorCodeGroup(name string) []ErrorDescriptor {
	desc := groupToDescriptors[name]
	sort.Sort(byValue(desc))
	return desc
}
