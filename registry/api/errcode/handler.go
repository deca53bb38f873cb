package errcode

import (
	"encoding/json"
	"net/http"
)

// ServeJSON serves err as the {"errors":[...]} JSON envelope, setting the
// response status code from err's ErrorCoder (if any) and defaulting to 500
// otherwise.
func ServeJSON(w http.ResponseWriter, err error) error {
	w.Header().Set("Content-Type", "application/json")

	var envelope error
	switch e := err.(type) {
	case Errors:
		envelope = e
	case ErrorCoder:
		envelope = Errors{err}
	default:
		envelope = Errors{err}
	}

	w.WriteHeader(httpStatusCode(envelope))
	return json.NewEncoder(w).Encode(envelope)
}
