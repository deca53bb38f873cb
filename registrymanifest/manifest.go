// Package registrymanifest parses the manifest media types the registry
// accepts and extracts the blob digests they reference, grounded on
// distribution/distribution/manifest's schema2, ocischema and
// manifestlist packages (RegisterManifestSchema-by-media-type, Deserialized*
// wrapping the original bytes, References() returning descriptors).
package registrymanifest

import (
	"fmt"
	"sync"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	digestpkg "github.com/distribution-core/registry/digest"
)

// Recognized media types, matching the OCI and Docker Distribution v2
// manifest formats.
const (
	MediaTypeOCIManifest        = "application/vnd.oci.image.manifest.v1+json"
	MediaTypeOCIIndex           = "application/vnd.oci.image.index.v1+json"
	MediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
)

// Descriptor is an OCI content descriptor: digest, size and media type of a
// referenced blob or child manifest.
type Descriptor = v1.Descriptor

// Manifest is a parsed manifest body: its declared media type and the
// descriptors of everything it references (config + layers for an image
// manifest, child manifests for an index).
type Manifest interface {
	MediaType() string
	References() []Descriptor
}

// ErrUnsupportedMediaType is returned by Parse for a media type with no
// registered unmarshaler.
type ErrUnsupportedMediaType struct {
	MediaType string
}

func (e ErrUnsupportedMediaType) Error() string {
	return fmt.Sprintf("registrymanifest: unsupported media type %q", e.MediaType)
}

type unmarshalFunc func([]byte) (Manifest, error)

var (
	mu           sync.Mutex
	unmarshalers = make(map[string]unmarshalFunc)
)

// register associates mediaType with fn. Called from this package's own
// init()s for each supported schema; exported schemas elsewhere in this
// module could call it too without touching Parse.
func register(mediaType string, fn unmarshalFunc) {
	mu.Lock()
	defer mu.Unlock()
	unmarshalers[mediaType] = fn
}

// Parse decodes body according to mediaType, which must be one of the
// media types registered by this package's schema files.
func Parse(mediaType string, body []byte) (Manifest, error) {
	mu.Lock()
	fn, ok := unmarshalers[mediaType]
	mu.Unlock()

	if !ok {
		return nil, ErrUnsupportedMediaType{MediaType: mediaType}
	}
	return fn(body)
}

// ReferencedDigests extracts just the digests from m.References(), for
// callers that only need existence-checking, not size/media-type.
func ReferencedDigests(m Manifest) []digestpkg.Digest {
	refs := m.References()
	out := make([]digestpkg.Digest, 0, len(refs))
	for _, d := range refs {
		out = append(out, digestpkg.Digest(d.Digest.String()))
	}
	return out
}
