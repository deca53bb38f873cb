package v2

import (
	"net/url"
	"testing"
)

func TestURLBuilderManifest(t *testing.T) {
	ub := NewURLBuilder("")
	u, err := ub.BuildManifestURL("library/app", "latest")
	if err != nil {
		t.Fatalf("BuildManifestURL: %v", err)
	}
	if u != "/v2/library/app/manifests/latest" {
		t.Fatalf("got %q", u)
	}
}

func TestURLBuilderBlobUploadChunkWithDigest(t *testing.T) {
	ub := NewURLBuilder("")
	values := url.Values{"digest": []string{"sha256:deadbeef"}}
	u, err := ub.BuildBlobUploadChunkURL("library/app", "abc-123", values)
	if err != nil {
		t.Fatalf("BuildBlobUploadChunkURL: %v", err)
	}
	want := "/v2/library/app/blobs/uploads/abc-123?digest=sha256%3Adeadbeef"
	if u != want {
		t.Fatalf("got %q, want %q", u, want)
	}
}
