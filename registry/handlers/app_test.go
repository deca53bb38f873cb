package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	digestpkg "github.com/distribution-core/registry/digest"
	"github.com/distribution-core/registry/metadata"
	"github.com/distribution-core/registry/registry/auth"
	"github.com/distribution-core/registry/registry/auth/token"
	"github.com/distribution-core/registry/registry/manifestservice"
	"github.com/distribution-core/registry/registry/storage"
	"github.com/distribution-core/registry/registry/storage/driver/inmemory"
)

func sha256Digest(b []byte) string {
	return digestpkg.FromBytes(b).String()
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	blobs := storage.NewBlobStore(inmemory.New())
	uploads := storage.NewUploadManager(blobs, inmemory.New())
	index := metadata.NewMemoryIndex()
	manifests := manifestservice.New(blobs, index, 0)
	gate := auth.NewGate(auth.GateConfig{AllowAnonymousPull: true, IsPublic: func(string) bool { return true }})

	return NewApp(Config{
		Blobs:           blobs,
		Uploads:         uploads,
		Manifests:       manifests,
		Index:           index,
		Gate:            gate,
		AllowBlobDelete: true,
	})
}

func pushToken(t *testing.T, repo string) string {
	t.Helper()
	claims := token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
		Access: []token.ResourceActions{
			{Type: "repository", Name: repo, Actions: []string{"pull", "push", "delete"}},
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestFullBlobAndManifestRoundTrip(t *testing.T) {
	app := newTestApp(t)
	repo := "library/app"
	authz := "Bearer " + pushToken(t, repo)

	// Start an upload.
	req := httptest.NewRequest(http.MethodPost, "/v2/"+repo+"/blobs/uploads/", nil)
	req.Header.Set("Authorization", authz)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	uploadID := rec.Header().Get("Docker-Upload-UUID")
	if uploadID == "" {
		t.Fatal("missing Docker-Upload-UUID")
	}

	// Finalize with the whole layer in one PUT.
	layer := []byte("layer-bytes")
	layerDigest := sha256Digest(layer)
	req = httptest.NewRequest(http.MethodPut, "/v2/"+repo+"/blobs/uploads/"+uploadID+"?digest="+layerDigest, strings.NewReader(string(layer)))
	req.Header.Set("Authorization", authz)
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("finalize status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Push a config blob the same way.
	config := []byte("{}")
	configDigest := sha256Digest(config)
	req = httptest.NewRequest(http.MethodPost, "/v2/"+repo+"/blobs/uploads/", nil)
	req.Header.Set("Authorization", authz)
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	configUploadID := rec.Header().Get("Docker-Upload-UUID")

	req = httptest.NewRequest(http.MethodPut, "/v2/"+repo+"/blobs/uploads/"+configUploadID+"?digest="+configDigest, strings.NewReader(string(config)))
	req.Header.Set("Authorization", authz)
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("finalize config status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Put the manifest referencing both blobs.
	manifestBody := `{
		"schemaVersion": 2,
		"mediaType": "application/vnd.oci.image.manifest.v1+json",
		"config": {"mediaType": "application/vnd.oci.image.config.v1+json", "digest": "` + configDigest + `", "size": ` + strconv.Itoa(len(config)) + `},
		"layers": [
			{"mediaType": "application/vnd.oci.image.layer.v1.tar+gzip", "digest": "` + layerDigest + `", "size": ` + strconv.Itoa(len(layer)) + `}
		]
	}`
	req = httptest.NewRequest(http.MethodPut, "/v2/"+repo+"/manifests/latest", strings.NewReader(manifestBody))
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Type", "application/vnd.oci.image.manifest.v1+json")
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("put manifest status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Anonymous GET of the manifest by tag should succeed (public repo, anonymous pull allowed).
	req = httptest.NewRequest(http.MethodGet, "/v2/"+repo+"/manifests/latest", nil)
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get manifest status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != manifestBody {
		t.Fatal("get manifest returned different body")
	}

	// List tags.
	req = httptest.NewRequest(http.MethodGet, "/v2/"+repo+"/tags/list", nil)
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list tags status = %d", rec.Code)
	}
	var tagsResp tagsListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tagsResp); err != nil {
		t.Fatalf("decode tags: %v", err)
	}
	if len(tagsResp.Tags) != 1 || tagsResp.Tags[0] != "latest" {
		t.Fatalf("tags = %v", tagsResp.Tags)
	}
}

func TestBlobMountSkipsUploadSession(t *testing.T) {
	app := newTestApp(t)
	sourceRepo := "library/source"
	destRepo := "library/dest"
	authz := "Bearer " + pushToken(t, sourceRepo)

	layer := []byte("shared-layer")
	layerDigest := sha256Digest(layer)

	req := httptest.NewRequest(http.MethodPost, "/v2/"+sourceRepo+"/blobs/uploads/", nil)
	req.Header.Set("Authorization", authz)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	uploadID := rec.Header().Get("Docker-Upload-UUID")

	req = httptest.NewRequest(http.MethodPut, "/v2/"+sourceRepo+"/blobs/uploads/"+uploadID+"?digest="+layerDigest, strings.NewReader(string(layer)))
	req.Header.Set("Authorization", authz)
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("finalize source blob status = %d", rec.Code)
	}

	// Mount the same blob into destRepo using a token authorized for both.
	mountAuthz := "Bearer " + multiRepoToken(t, destRepo, sourceRepo)
	req = httptest.NewRequest(http.MethodPost, "/v2/"+destRepo+"/blobs/uploads/?mount="+layerDigest+"&from="+sourceRepo, nil)
	req.Header.Set("Authorization", mountAuthz)
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("mount status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Docker-Upload-UUID") != "" {
		t.Fatal("mount should not start an upload session")
	}
	if rec.Header().Get("Docker-Content-Digest") != layerDigest {
		t.Fatalf("Docker-Content-Digest = %q, want %q", rec.Header().Get("Docker-Content-Digest"), layerDigest)
	}
}

func multiRepoToken(t *testing.T, repos ...string) string {
	t.Helper()
	access := make([]token.ResourceActions, len(repos))
	for i, r := range repos {
		access[i] = token.ResourceActions{Type: "repository", Name: r, Actions: []string{"pull", "push"}}
	}
	claims := token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
		Access:           access,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestChunkedUploadResume(t *testing.T) {
	app := newTestApp(t)
	repo := "library/app"
	authz := "Bearer " + pushToken(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/v2/"+repo+"/blobs/uploads/", nil)
	req.Header.Set("Authorization", authz)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Range"); got != "0-0" {
		t.Fatalf("initial Range = %q, want %q", got, "0-0")
	}
	uploadID := rec.Header().Get("Docker-Upload-UUID")
	chunkURL := "/v2/" + repo + "/blobs/uploads/" + uploadID

	first := []byte(strings.Repeat("a", 2000))
	req = httptest.NewRequest(http.MethodPatch, chunkURL, strings.NewReader(string(first)))
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Range", "0-1999")
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first chunk status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Range"); got != "0-1999" {
		t.Fatalf("Range after 2000-byte chunk = %q, want %q", got, "0-1999")
	}

	// A client reading that Range header resumes with a Content-Range
	// starting at 2000, the byte immediately after the last one accepted.
	second := []byte(strings.Repeat("b", 500))
	req = httptest.NewRequest(http.MethodPatch, chunkURL, strings.NewReader(string(second)))
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Range", "2000-2499")
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("second chunk status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Range"); got != "0-2499" {
		t.Fatalf("Range after resumed chunk = %q, want %q", got, "0-2499")
	}

	full := append(first, second...)
	digest := sha256Digest(full)
	req = httptest.NewRequest(http.MethodPut, chunkURL+"?digest="+digest, nil)
	req.Header.Set("Authorization", authz)
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("finalize status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestChunkedUploadNonContiguousRangeReports416AndRange(t *testing.T) {
	app := newTestApp(t)
	repo := "library/app"
	authz := "Bearer " + pushToken(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/v2/"+repo+"/blobs/uploads/", nil)
	req.Header.Set("Authorization", authz)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	uploadID := rec.Header().Get("Docker-Upload-UUID")
	chunkURL := "/v2/" + repo + "/blobs/uploads/" + uploadID

	first := []byte(strings.Repeat("a", 100))
	req = httptest.NewRequest(http.MethodPatch, chunkURL, strings.NewReader(string(first)))
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Range", "0-99")
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first chunk status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Skip ahead instead of resuming at byte 100: the server must reject
	// this and report where it actually left off.
	req = httptest.NewRequest(http.MethodPatch, chunkURL, strings.NewReader("gap"))
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Range", "500-502")
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("non-contiguous chunk status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Range"); got != "0-99" {
		t.Fatalf("Range on 416 = %q, want %q", got, "0-99")
	}
}

func TestAnonymousPushDenied(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/v2/library/app/blobs/uploads/", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate challenge header")
	}
}

