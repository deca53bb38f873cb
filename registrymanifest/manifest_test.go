package registrymanifest

import "testing"

const ociManifestJSON = `{
	"schemaVersion": 2,
	"mediaType": "application/vnd.oci.image.manifest.v1+json",
	"config": {"mediaType": "application/vnd.oci.image.config.v1+json", "digest": "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85", "size": 2},
	"layers": [
		{"mediaType": "application/vnd.oci.image.layer.v1.tar+gzip", "digest": "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85", "size": 10}
	]
}`

const ociIndexJSON = `{
	"schemaVersion": 2,
	"mediaType": "application/vnd.oci.image.index.v1+json",
	"manifests": [
		{"mediaType": "application/vnd.oci.image.manifest.v1+json", "digest": "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85", "size": 100}
	]
}`

func TestParseOCIManifest(t *testing.T) {
	m, err := Parse(MediaTypeOCIManifest, []byte(ociManifestJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.References()) != 2 {
		t.Fatalf("References() = %d, want 2 (config + 1 layer)", len(m.References()))
	}
}

func TestParseOCIIndex(t *testing.T) {
	m, err := Parse(MediaTypeOCIIndex, []byte(ociIndexJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.References()) != 1 {
		t.Fatalf("References() = %d, want 1", len(m.References()))
	}
}

func TestParseRejectsManifestAsIndex(t *testing.T) {
	if _, err := Parse(MediaTypeOCIIndex, []byte(ociManifestJSON)); err == nil {
		t.Fatal("expected error parsing a manifest body as an index")
	}
}

func TestParseUnsupportedMediaType(t *testing.T) {
	if _, err := Parse("application/vnd.unknown+json", []byte("{}")); err == nil {
		t.Fatal("expected ErrUnsupportedMediaType")
	} else if _, ok := err.(ErrUnsupportedMediaType); !ok {
		t.Fatalf("got %v, want ErrUnsupportedMediaType", err)
	}
}
