package v2

import (
	"net/url"

	"github.com/gorilla/mux"
)

// URLBuilder constructs the absolute paths this registry returns in
// Location headers, built around the same named mux.Router RouterWithPrefix
// produces so a path can never drift from what the router actually serves.
type URLBuilder struct {
	router *mux.Router
}

// NewURLBuilder constructs a URLBuilder over prefix's route table.
func NewURLBuilder(prefix string) *URLBuilder {
	return &URLBuilder{router: RouterWithPrefix(prefix)}
}

func (ub *URLBuilder) build(routeName string, pairs ...string) (string, error) {
	route := ub.router.Get(routeName)

	u, err := route.URLPath(pairs...)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// BuildManifestURL returns the path for a repo's manifest by tag or digest.
func (ub *URLBuilder) BuildManifestURL(name, reference string) (string, error) {
	return ub.build(RouteNameManifest, "name", name, "reference", reference)
}

// BuildTagsURL returns the path to list a repo's tags.
func (ub *URLBuilder) BuildTagsURL(name string) (string, error) {
	return ub.build(RouteNameTags, "name", name)
}

// BuildBlobURL returns the path for a repo's blob by digest.
func (ub *URLBuilder) BuildBlobURL(name, digest string) (string, error) {
	return ub.build(RouteNameBlob, "name", name, "digest", digest)
}

// BuildBlobUploadURL returns the path to start a blob upload session,
// appending query values (e.g. "mount", "from") when provided.
func (ub *URLBuilder) BuildBlobUploadURL(name string, values url.Values) (string, error) {
	base, err := ub.build(RouteNameBlobUpload, "name", name)
	if err != nil {
		return "", err
	}
	return appendValues(base, values), nil
}

// BuildBlobUploadChunkURL returns the path to PATCH/PUT/DELETE an upload
// session by id, appending query values (e.g. "digest") when provided.
func (ub *URLBuilder) BuildBlobUploadChunkURL(name, uuid string, values url.Values) (string, error) {
	base, err := ub.build(RouteNameBlobUploadChunk, "name", name, "uuid", uuid)
	if err != nil {
		return "", err
	}
	return appendValues(base, values), nil
}

// BuildCatalogURL returns the path to list repositories, appending query
// values (e.g. "n", "last") when provided.
func (ub *URLBuilder) BuildCatalogURL(values url.Values) (string, error) {
	base, err := ub.build(RouteNameCatalog)
	if err != nil {
		return "", err
	}
	return appendValues(base, values), nil
}

func appendValues(base string, values url.Values) string {
	if len(values) == 0 {
		return base
	}
	return base + "?" + values.Encode()
}
