// Package handlers implements the HTTP front-end of spec §4.G, wiring an
// incoming request through the Authorization Gate to the storage, metadata
// and manifest services, grounded on distribution/distribution's
// registry/handlers package (app.go's dispatch shape, context.go's
// per-request Context, manifests.go/blobupload.go's handler bodies).
package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/distribution-core/registry/registry/api/errcode"
	"github.com/distribution-core/registry/registry/auth"
)

// Context carries the per-request state a handler needs beyond what's on
// the http.Request: the repository name parsed from the route, the
// authorized principal, and any errors accumulated for the response
// envelope.
type Context struct {
	context.Context

	Repo      string
	Principal auth.Principal
	Errors    errcode.Errors
}

func routeVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func repoName(r *http.Request) string   { return routeVar(r, "name") }
func reference(r *http.Request) string  { return routeVar(r, "reference") }
func digestVar(r *http.Request) string  { return routeVar(r, "digest") }
func uploadUUID(r *http.Request) string { return routeVar(r, "uuid") }

// validRepoName reports whether name satisfies spec §3.1's length bound:
// the route regexp already constrains its character set, but a mux path
// variable can still be a single character, which §3.1 rejects.
func validRepoName(name string) bool {
	return len(name) >= 2 && len(name) <= 255
}
