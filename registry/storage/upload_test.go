package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	digestpkg "github.com/distribution-core/registry/digest"
	"github.com/distribution-core/registry/registry/storage/driver/inmemory"
)

func newTestManager() (*UploadManager, *BlobStore) {
	d := inmemory.New()
	bs := NewBlobStore(d)
	return NewUploadManager(bs, d), bs
}

func TestUploadAppendAndCommit(t *testing.T) {
	ctx := context.Background()
	mgr, bs := newTestManager()

	u := mgr.Create(ctx, "library/app")
	content := []byte("hello, blob")

	n, err := u.Append(ctx, 0, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if n != int64(len(content)) {
		t.Fatalf("Append length = %d, want %d", n, len(content))
	}

	dgst := digestpkg.FromBytes(content)
	desc, err := u.Commit(ctx, dgst)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if desc.Digest != dgst {
		t.Fatalf("Commit digest = %v, want %v", desc.Digest, dgst)
	}

	if ok, err := bs.Exists(ctx, dgst); err != nil || !ok {
		t.Fatalf("blob not committed: %v, %v", ok, err)
	}
}

func TestUploadRangeInvalid(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager()

	u := mgr.Create(ctx, "library/app")
	if _, err := u.Append(ctx, 5, bytes.NewReader([]byte("x"))); err == nil {
		t.Fatal("expected ErrRangeInvalid for non-contiguous append")
	} else if _, ok := err.(ErrRangeInvalid); !ok {
		t.Fatalf("got %v, want ErrRangeInvalid", err)
	}
}

func TestUploadDigestMismatch(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager()

	u := mgr.Create(ctx, "library/app")
	if _, err := u.Append(ctx, 0, bytes.NewReader([]byte("actual content"))); err != nil {
		t.Fatal(err)
	}

	wrong := digestpkg.FromBytes([]byte("different content"))
	if _, err := u.Commit(ctx, wrong); err == nil {
		t.Fatal("expected ErrDigestMismatch")
	} else if _, ok := err.(ErrDigestMismatch); !ok {
		t.Fatalf("got %v, want ErrDigestMismatch", err)
	}

	// session stays open after a failed finalize
	if u.Size() != int64(len("actual content")) {
		t.Fatalf("Size() = %d after failed commit, want unchanged", u.Size())
	}
}

func TestUploadCancel(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager()

	u := mgr.Create(ctx, "library/app")
	if _, err := u.Append(ctx, 0, bytes.NewReader([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	if err := u.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := u.Append(ctx, 1, bytes.NewReader([]byte("y"))); err == nil {
		t.Fatal("expected append on canceled session to fail")
	}
}

func TestUploadTooLarge(t *testing.T) {
	ctx := context.Background()
	d := inmemory.New()
	bs := NewBlobStore(d)
	mgr := NewUploadManager(bs, d, 4)

	u := mgr.Create(ctx, "library/app")
	if _, err := u.Append(ctx, 0, bytes.NewReader([]byte("too many bytes"))); err == nil {
		t.Fatal("expected ErrBlobTooLarge")
	} else if _, ok := err.(ErrBlobTooLarge); !ok {
		t.Fatalf("got %v, want ErrBlobTooLarge", err)
	}
}

func TestReapExpired(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager()

	u := mgr.Create(ctx, "library/app")
	u.LastActivity = time.Now().Add(-48 * time.Hour)

	n := mgr.ReapExpired(ctx, 24*time.Hour)
	if n != 1 {
		t.Fatalf("ReapExpired = %d, want 1", n)
	}

	if _, err := mgr.Get(u.ID); err == nil {
		t.Fatal("expected session to be removed after reap")
	}
}
