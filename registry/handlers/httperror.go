package handlers

import (
	"net/http"

	"github.com/distribution-core/registry/registry/api/errcode"
	"github.com/distribution-core/registry/registry/auth"
)

// writeAuthError serves a Gate decision's error as the appropriate HTTP
// response: 401 with a WWW-Authenticate challenge for ErrUnauthorized, 403
// DENIED for ErrDenied.
func writeAuthError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case auth.ErrUnauthorized:
		e.Challenge.SetHeader(w.Header())
		errcode.ServeJSON(w, errcode.ErrorCodeUnauthorized)
	case auth.ErrDenied:
		errcode.ServeJSON(w, errcode.ErrorCodeDenied.WithDetail(e.Error()))
	default:
		errcode.ServeJSON(w, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
	}
}
