package notifications

import (
	"context"
	"testing"

	events "github.com/docker/go-events"

	digestpkg "github.com/distribution-core/registry/digest"
	"github.com/distribution-core/registry/registry/storage"
)

var (
	bridgeRepo   = "test/repo"
	bridgeSource = SourceRecord{Addr: "remote.test", InstanceID: "instance-1"}
	bridgeActor  = ActorRecord{Name: "test"}
	bridgeReq    = RequestRecord{}
	bridgeTag    = "latest"
	bridgeDigest = digestpkg.FromBytes([]byte("manifest-body"))
	bridgeSize   = int64(128)
)

type stubURLBuilder struct{}

func (stubURLBuilder) BuildManifestURL(name, reference string) (string, error) {
	return "http://test.example.com/v2/" + name + "/manifests/" + reference, nil
}

func (stubURLBuilder) BuildBlobURL(name, digest string) (string, error) {
	return "http://test.example.com/v2/" + name + "/blobs/" + digest, nil
}

type testSinkFn func(event events.Event) error

func (f testSinkFn) Write(event events.Event) error { return f(event) }
func (f testSinkFn) Close() error                   { return nil }

func newTestBridge(fn testSinkFn) Listener {
	return NewBridge(stubURLBuilder{}, bridgeSource, bridgeActor, bridgeReq, fn, true)
}

func checkCommon(t *testing.T, event events.Event) {
	t.Helper()
	e := event.(Event)
	if e.Source != bridgeSource {
		t.Fatalf("source not equal: %#v != %#v", e.Source, bridgeSource)
	}
	if e.Request != bridgeReq {
		t.Fatalf("request not equal: %#v != %#v", e.Request, bridgeReq)
	}
	if e.Actor != bridgeActor {
		t.Fatalf("actor not equal: %#v != %#v", e.Actor, bridgeActor)
	}
	if e.Target.Repository != bridgeRepo {
		t.Fatalf("unexpected repository: %q != %q", e.Target.Repository, bridgeRepo)
	}
}

func TestEventBridgeManifestPushed(t *testing.T) {
	l := newTestBridge(func(event events.Event) error {
		checkCommon(t, event)
		e := event.(Event)
		if e.Action != EventActionPush {
			t.Fatalf("unexpected action: %q", e.Action)
		}
		if e.Target.Digest != bridgeDigest {
			t.Fatalf("unexpected digest: %q != %q", e.Target.Digest, bridgeDigest)
		}
		wantURL, _ := stubURLBuilder{}.BuildManifestURL(bridgeRepo, bridgeDigest.String())
		if e.Target.URL != wantURL {
			t.Fatalf("unexpected url: %q != %q", e.Target.URL, wantURL)
		}
		return nil
	})

	if err := l.ManifestPushed(context.Background(), bridgeRepo, "application/vnd.oci.image.manifest.v1+json", bridgeDigest, bridgeSize, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventBridgeManifestPushedWithTag(t *testing.T) {
	l := newTestBridge(func(event events.Event) error {
		e := event.(Event)
		if e.Target.Tag != bridgeTag {
			t.Fatalf("missing or unexpected tag: %#v", e.Target)
		}
		return nil
	})

	if err := l.ManifestPushed(context.Background(), bridgeRepo, "application/vnd.oci.image.manifest.v1+json", bridgeDigest, bridgeSize, bridgeTag, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventBridgeManifestPulled(t *testing.T) {
	l := newTestBridge(func(event events.Event) error {
		checkCommon(t, event)
		if event.(Event).Action != EventActionPull {
			t.Fatalf("unexpected action: %q", event.(Event).Action)
		}
		return nil
	})

	if err := l.ManifestPulled(context.Background(), bridgeRepo, "application/vnd.oci.image.manifest.v1+json", bridgeDigest, bridgeSize, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventBridgeManifestDeleted(t *testing.T) {
	l := newTestBridge(func(event events.Event) error {
		checkCommon(t, event)
		e := event.(Event)
		if e.Action != EventActionDelete {
			t.Fatalf("unexpected action: %q", e.Action)
		}
		if e.Target.Digest != bridgeDigest {
			t.Fatalf("unexpected digest: %q != %q", e.Target.Digest, bridgeDigest)
		}
		return nil
	})

	if err := l.ManifestDeleted(context.Background(), bridgeRepo, bridgeDigest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventBridgeTagDeleted(t *testing.T) {
	l := newTestBridge(func(event events.Event) error {
		checkCommon(t, event)
		if event.(Event).Target.Tag != bridgeTag {
			t.Fatalf("unexpected tag: %q != %q", event.(Event).Target.Tag, bridgeTag)
		}
		return nil
	})

	if err := l.TagDeleted(context.Background(), bridgeRepo, bridgeTag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventBridgeRepoDeleted(t *testing.T) {
	l := newTestBridge(func(event events.Event) error {
		checkCommon(t, event)
		return nil
	})

	if err := l.RepoDeleted(context.Background(), bridgeRepo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventBridgeBlobPushedAndMounted(t *testing.T) {
	desc := storage.Descriptor{Digest: bridgeDigest, Size: bridgeSize, MediaType: "application/vnd.oci.image.layer.v1.tar+gzip"}

	l := newTestBridge(func(event events.Event) error {
		e := event.(Event)
		if e.Action != EventActionPush {
			t.Fatalf("unexpected action: %q", e.Action)
		}
		if e.Target.Digest != desc.Digest {
			t.Fatalf("unexpected digest: %q != %q", e.Target.Digest, desc.Digest)
		}
		return nil
	})
	if err := l.BlobPushed(context.Background(), bridgeRepo, desc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l = newTestBridge(func(event events.Event) error {
		e := event.(Event)
		if e.Action != EventActionMount {
			t.Fatalf("unexpected action: %q", e.Action)
		}
		if e.Target.FromRepository != "library/source" {
			t.Fatalf("unexpected from repository: %q", e.Target.FromRepository)
		}
		return nil
	})
	if err := l.BlobMounted(context.Background(), bridgeRepo, desc, "library/source"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
