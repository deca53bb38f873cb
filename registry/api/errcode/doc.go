// Package errcode defines the registry's JSON error envelope: a registry of
// ErrorCode values identified by a stable string Value (e.g. "BLOB_UNKNOWN"),
// each carrying an HTTP status code and a default message. A handler builds
// an Error (or an Errors slice, for multi-error responses) from a
// registered ErrorCode and serves it with ServeJSON.
package errcode
