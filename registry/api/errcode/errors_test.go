package errcode

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorCodeWithDetail(t *testing.T) {
	err := ErrorCodeDigestInvalid.WithDetail("sha256:deadbeef")
	if err.Code != ErrorCodeDigestInvalid {
		t.Fatalf("Code = %v", err.Code)
	}
	if err.Detail != "sha256:deadbeef" {
		t.Fatalf("Detail = %v", err.Detail)
	}
}

func TestErrorsMarshalEnvelope(t *testing.T) {
	errs := Errors{ErrorCodeBlobUnknown.WithDetail("sha256:abc")}
	data, err := json.Marshal(errs)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Errors
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("decoded len = %d, want 1", len(decoded))
	}
	got := decoded[0].(Error)
	if got.Code != ErrorCodeBlobUnknown {
		t.Fatalf("Code = %v, want %v", got.Code, ErrorCodeBlobUnknown)
	}
}

func TestServeJSONSetsStatusFromErrorCode(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := ServeJSON(rec, ErrorCodeManifestUnknown.WithDetail("library/app:latest")); err != nil {
		t.Fatalf("ServeJSON: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestServeJSONUnknownErrorDefaultsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := ServeJSON(rec, errPlain("boom")); err != nil {
		t.Fatalf("ServeJSON: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
