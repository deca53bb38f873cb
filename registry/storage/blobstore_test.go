package storage

import (
	"context"
	"io"
	"testing"

	digestpkg "github.com/distribution-core/registry/digest"
	"github.com/distribution-core/registry/registry/storage/driver/inmemory"
)

func TestBlobStorePutAndOpen(t *testing.T) {
	ctx := context.Background()
	bs := NewBlobStore(inmemory.New())

	content := []byte("manifest body")
	desc, err := bs.Put(ctx, "application/vnd.oci.image.manifest.v1+json", content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if desc.Digest != digestpkg.FromBytes(content) {
		t.Fatalf("Put digest = %v, want %v", desc.Digest, digestpkg.FromBytes(content))
	}

	rc, gotDesc, err := bs.Open(ctx, desc.Digest)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("Open content = %q, want %q", got, content)
	}
	if gotDesc.Size != int64(len(content)) {
		t.Fatalf("Size = %d, want %d", gotDesc.Size, len(content))
	}
}

func TestBlobStoreDedup(t *testing.T) {
	ctx := context.Background()
	bs := NewBlobStore(inmemory.New())

	content := []byte("same bytes twice")
	d1, err := bs.Put(ctx, "", content)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := bs.Put(ctx, "", content)
	if err != nil {
		t.Fatal(err)
	}
	if d1.Digest != d2.Digest {
		t.Fatalf("digests differ for identical content: %v != %v", d1.Digest, d2.Digest)
	}
}

func TestBlobStoreUnknown(t *testing.T) {
	ctx := context.Background()
	bs := NewBlobStore(inmemory.New())

	dgst := digestpkg.FromBytes([]byte("never written"))
	if ok, err := bs.Exists(ctx, dgst); err != nil || ok {
		t.Fatalf("Exists = %v, %v, want false, nil", ok, err)
	}

	if _, _, err := bs.Open(ctx, dgst); err == nil {
		t.Fatal("expected ErrBlobUnknown")
	} else if _, ok := err.(ErrBlobUnknown); !ok {
		t.Fatalf("Open error = %v, want ErrBlobUnknown", err)
	}
}
