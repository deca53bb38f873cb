package inmemory

import (
	"context"
	"testing"
)

func TestPutGetContent(t *testing.T) {
	ctx := context.Background()
	d := New()

	if err := d.PutContent(ctx, "/a/b", []byte("data")); err != nil {
		t.Fatalf("PutContent: %v", err)
	}

	got, err := d.GetContent(ctx, "/a/b")
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("GetContent = %q, want %q", got, "data")
	}
}

func TestListDirectDescendants(t *testing.T) {
	ctx := context.Background()
	d := New()

	for _, p := range []string{"/repo/a/b", "/repo/c"} {
		if err := d.PutContent(ctx, p, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := d.List(ctx, "/repo")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() = %v, want 2 entries", entries)
	}
}

func TestAppendWriter(t *testing.T) {
	ctx := context.Background()
	d := New()

	w, err := d.Writer(ctx, "/f", false)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("ab"))
	if err := w.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	w2, err := d.Writer(ctx, "/f", true)
	if err != nil {
		t.Fatal(err)
	}
	w2.Write([]byte("cd"))
	if err := w2.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := d.GetContent(ctx, "/f")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abcd" {
		t.Fatalf("GetContent = %q, want %q", got, "abcd")
	}
}

func TestDeleteRemovesSubtree(t *testing.T) {
	ctx := context.Background()
	d := New()

	if err := d.PutContent(ctx, "/x/y", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := d.Delete(ctx, "/x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := d.GetContent(ctx, "/x/y"); err == nil {
		t.Fatal("expected subtree to be gone")
	}
}
