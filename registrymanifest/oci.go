package registrymanifest

import (
	"encoding/json"
	"errors"
	"fmt"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

func init() {
	register(MediaTypeOCIManifest, unmarshalOCIManifest)
	register(MediaTypeOCIIndex, unmarshalOCIIndex)
}

// ociManifest is an OCI image manifest: a config blob plus an ordered list
// of layer blobs.
type ociManifest struct {
	raw []byte
	v1.Manifest
}

func unmarshalOCIManifest(body []byte) (Manifest, error) {
	var m v1.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("registrymanifest: decode oci manifest: %w", err)
	}
	if m.Config.Digest == "" {
		return nil, errors.New("registrymanifest: oci manifest missing config descriptor")
	}

	return ociManifest{raw: body, Manifest: m}, nil
}

func (m ociManifest) MediaType() string { return MediaTypeOCIManifest }

func (m ociManifest) References() []Descriptor {
	refs := make([]Descriptor, 0, 1+len(m.Layers))
	refs = append(refs, m.Config)
	refs = append(refs, m.Layers...)
	return refs
}

// ociIndex is an OCI image index: a list of child manifest descriptors,
// one per platform.
type ociIndex struct {
	raw []byte
	v1.Index
}

func unmarshalOCIIndex(body []byte) (Manifest, error) {
	// An index has no config/layers fields; reject bodies that do, so a
	// mistagged image manifest isn't silently accepted as an index.
	var probe struct {
		Config json.RawMessage `json:"config"`
		Layers json.RawMessage `json:"layers"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("registrymanifest: decode oci index: %w", err)
	}
	if probe.Config != nil || probe.Layers != nil {
		return nil, errors.New("registrymanifest: expected index but found image manifest fields")
	}

	var idx v1.Index
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("registrymanifest: decode oci index: %w", err)
	}

	return ociIndex{raw: body, Index: idx}, nil
}

func (m ociIndex) MediaType() string { return MediaTypeOCIIndex }

func (m ociIndex) References() []Descriptor { return m.Manifests }
