// Package v2 defines the registry's routing table (spec §4.G): the named
// mux routes the Distribution v2 protocol requires, grounded on
// distribution/distribution/registry/api/v2's route naming and regexp
// conventions (its own route.go/descriptors.go weren't present in the
// retrieved pack; this file reconstructs the router from routes_test.go's
// expectations and the protocol's published path grammar).
package v2

import (
	"regexp"

	"github.com/gorilla/mux"
)

// Route names, matched 1:1 against mux.CurrentRoute(r).GetName() by
// handlers registered on the router.
const (
	RouteNameBase            = "base"
	RouteNameManifest        = "manifest"
	RouteNameTags            = "tags"
	RouteNameBlob            = "blob"
	RouteNameBlobUpload      = "blob-upload"
	RouteNameBlobUploadChunk = "blob-upload-chunk"
	RouteNameCatalog         = "catalog"
)

// nameComponent matches a single path segment of a repository name:
// lowercase alphanumerics with separators (., _, __, -) in the middle.
const nameComponent = `[a-z0-9]+(?:(?:[._]|__|[-]+)[a-z0-9]+)*`

// nameRegexp matches a full repository name: one or more nameComponents
// joined by '/'.
var nameRegexp = regexp.MustCompile(nameComponent + `(?:/` + nameComponent + `)*`)

// referenceRegexp matches a tag name or a digest, the two legal forms of a
// manifest "reference" path segment.
var referenceRegexp = regexp.MustCompile(`[A-Za-z0-9_][A-Za-z0-9._-]{0,127}|[A-Za-z][A-Za-z0-9]*(?:[+.-][A-Za-z][A-Za-z0-9]*)*:[A-Fa-f0-9]{32,}`)

// digestRegexp matches a content digest path segment.
var digestRegexp = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]*(?:[+.-][A-Za-z][A-Za-z0-9]*)*:[A-Fa-f0-9]{32,}`)

// uuidRegexp matches an upload session id: a canonical UUID, or an
// arbitrary base64 token (the teacher's router accepts both forms so
// opaque, driver-generated upload ids aren't rejected).
var uuidRegexp = regexp.MustCompile(`[a-fA-F0-9-]{36}|[A-Za-z0-9=_+-]+`)

// Router builds the registry's mux.Router with no path prefix.
func Router() *mux.Router {
	return RouterWithPrefix("")
}

// RouterWithPrefix builds the registry's mux.Router, mounting every route
// under prefix (e.g. "/prefix/").
func RouterWithPrefix(prefix string) *mux.Router {
	rootRouter := mux.NewRouter()
	router := rootRouter
	if prefix != "" {
		router = rootRouter.PathPrefix(prefix).Subrouter()
	}
	router.StrictSlash(true)

	router.Path("/v2/").Name(RouteNameBase)
	router.Path("/v2/_catalog").Name(RouteNameCatalog)

	v2 := router.PathPrefix("/v2").Subrouter()
	v2.Path("/{name:" + nameRegexp.String() + "}/manifests/{reference:" + referenceRegexp.String() + "}").Name(RouteNameManifest)
	v2.Path("/{name:" + nameRegexp.String() + "}/tags/list").Name(RouteNameTags)
	v2.Path("/{name:" + nameRegexp.String() + "}/blobs/{digest:" + digestRegexp.String() + "}").Name(RouteNameBlob)
	v2.Path("/{name:" + nameRegexp.String() + "}/blobs/uploads/").Name(RouteNameBlobUpload)
	v2.Path("/{name:" + nameRegexp.String() + "}/blobs/uploads/{uuid:" + uuidRegexp.String() + "}").Name(RouteNameBlobUploadChunk)

	return rootRouter
}
