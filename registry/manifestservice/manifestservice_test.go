package manifestservice

import (
	"context"
	"strconv"
	"testing"

	"github.com/distribution-core/registry/metadata"
	"github.com/distribution-core/registry/registry/storage"
	"github.com/distribution-core/registry/registry/storage/driver/inmemory"
	"github.com/distribution-core/registry/registrymanifest"
)

func newTestService(t *testing.T) (*Service, *storage.BlobStore) {
	t.Helper()
	blobs := storage.NewBlobStore(inmemory.New())
	index := metadata.NewMemoryIndex()
	return New(blobs, index, 0), blobs
}

func TestPutManifestByTag(t *testing.T) {
	ctx := context.Background()
	svc, blobs := newTestService(t)

	cfg, err := blobs.Put(ctx, "application/vnd.oci.image.config.v1+json", []byte("config"))
	if err != nil {
		t.Fatalf("put config: %v", err)
	}
	layer, err := blobs.Put(ctx, "application/vnd.oci.image.layer.v1.tar+gzip", []byte("layer"))
	if err != nil {
		t.Fatalf("put layer: %v", err)
	}

	body := []byte(`{
		"schemaVersion": 2,
		"mediaType": "application/vnd.oci.image.manifest.v1+json",
		"config": {"mediaType": "application/vnd.oci.image.config.v1+json", "digest": "` + cfg.Digest.String() + `", "size": ` + strconv.FormatInt(cfg.Size, 10) + `},
		"layers": [
			{"mediaType": "application/vnd.oci.image.layer.v1.tar+gzip", "digest": "` + layer.Digest.String() + `", "size": ` + strconv.FormatInt(layer.Size, 10) + `}
		]
	}`)

	dgst, err := svc.PutManifest(ctx, "library/app", "latest", registrymanifest.MediaTypeOCIManifest, body)
	if err != nil {
		t.Fatalf("PutManifest: %v", err)
	}

	res, err := svc.GetManifest(ctx, "library/app", "latest", nil)
	if err != nil {
		t.Fatalf("GetManifest by tag: %v", err)
	}
	if res.Digest != dgst {
		t.Fatalf("GetManifest digest = %s, want %s", res.Digest, dgst)
	}

	res2, err := svc.GetManifest(ctx, "library/app", dgst.String(), nil)
	if err != nil {
		t.Fatalf("GetManifest by digest: %v", err)
	}
	if string(res2.Body) != string(body) {
		t.Fatal("GetManifest by digest returned different body")
	}
}

func TestPutManifestMissingBlob(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	body := []byte(`{
		"schemaVersion": 2,
		"mediaType": "application/vnd.oci.image.manifest.v1+json",
		"config": {"mediaType": "application/vnd.oci.image.config.v1+json", "digest": "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85", "size": 2}
	}`)

	_, err := svc.PutManifest(ctx, "library/app", "latest", registrymanifest.MediaTypeOCIManifest, body)
	if _, ok := err.(ErrManifestBlobUnknown); !ok {
		t.Fatalf("got %v, want ErrManifestBlobUnknown", err)
	}
}

func TestPutManifestTooLarge(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewBlobStore(inmemory.New())
	index := metadata.NewMemoryIndex()
	svc := New(blobs, index, 4)

	_, err := svc.PutManifest(ctx, "library/app", "latest", registrymanifest.MediaTypeOCIManifest, []byte("12345"))
	if _, ok := err.(ErrManifestTooLarge); !ok {
		t.Fatalf("got %v, want ErrManifestTooLarge", err)
	}
}

func TestDeleteManifestRequiresDigest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if err := svc.DeleteManifest(ctx, "library/app", "latest"); err == nil {
		t.Fatal("expected error deleting by tag")
	} else if _, ok := err.(ErrDeleteRequiresDigest); !ok {
		t.Fatalf("got %v, want ErrDeleteRequiresDigest", err)
	}
}

func TestGetManifestAcceptMismatch(t *testing.T) {
	ctx := context.Background()
	svc, blobs := newTestService(t)

	cfg, _ := blobs.Put(ctx, "application/vnd.oci.image.config.v1+json", []byte("c"))
	body := []byte(`{
		"schemaVersion": 2,
		"mediaType": "application/vnd.oci.image.manifest.v1+json",
		"config": {"mediaType": "application/vnd.oci.image.config.v1+json", "digest": "` + cfg.Digest.String() + `", "size": 1}
	}`)
	if _, err := svc.PutManifest(ctx, "library/app", "latest", registrymanifest.MediaTypeOCIManifest, body); err != nil {
		t.Fatalf("PutManifest: %v", err)
	}

	accept := map[string]bool{"application/vnd.docker.distribution.manifest.v2+json": true}
	if _, err := svc.GetManifest(ctx, "library/app", "latest", accept); err == nil {
		t.Fatal("expected ErrManifestUnknown for mismatched accept set")
	}
}
