package registrymanifest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Docker Distribution v2's schema2 manifest and manifest list share the OCI
// descriptor shape exactly; only the mediaType strings differ, matching
// distribution/distribution/manifest/schema2 and manifest/manifestlist.

func init() {
	register(MediaTypeDockerManifest, unmarshalDockerManifest)
	register(MediaTypeDockerManifestList, unmarshalDockerManifestList)
}

type dockerManifest struct {
	raw      []byte
	MediaTyp string       `json:"mediaType"`
	Config   Descriptor   `json:"config"`
	Layers   []Descriptor `json:"layers"`
}

func unmarshalDockerManifest(body []byte) (Manifest, error) {
	var m dockerManifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("registrymanifest: decode docker manifest: %w", err)
	}
	if m.Config.Digest == "" {
		return nil, errors.New("registrymanifest: docker manifest missing config descriptor")
	}
	m.raw = body
	return m, nil
}

func (m dockerManifest) MediaType() string { return MediaTypeDockerManifest }

func (m dockerManifest) References() []Descriptor {
	refs := make([]Descriptor, 0, 1+len(m.Layers))
	refs = append(refs, m.Config)
	refs = append(refs, m.Layers...)
	return refs
}

type dockerManifestList struct {
	raw       []byte
	MediaTyp  string       `json:"mediaType"`
	Manifests []Descriptor `json:"manifests"`
}


func unmarshalDockerManifestList(body []byte) (Manifest, error) {
	var l dockerManifestList
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, fmt.Errorf("registrymanifest: decode docker manifest list: %w", err)
	}
	l.raw = body
	return l, nil
}

func (l dockerManifestList) MediaType() string { return MediaTypeDockerManifestList }

func (l dockerManifestList) References() []Descriptor { return l.Manifests }
