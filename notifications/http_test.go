package notifications

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

// TestHTTPSink mocks out an http endpoint and notifies it under a couple of
// conditions, ensuring correct behavior, grounded on the teacher's
// notifications.TestHTTPSink.
func TestHTTPSink(t *testing.T) {
	serverHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			t.Fatalf("unexpected request method: %v", r.Method)
			return
		}

		contentType := r.Header.Get("Content-Type")
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			t.Fatalf("error parsing media type: %v, contenttype=%q", err, contentType)
			return
		}
		if mediaType != EventsMediaType {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			t.Fatalf("incorrect media type: %q != %q", mediaType, EventsMediaType)
			return
		}

		var envelope Envelope
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			t.Fatalf("error decoding request body: %v", err)
			return
		}

		status, err := strconv.Atoi(r.FormValue("status"))
		if err != nil {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	})
	server := httptest.NewTLSServer(serverHandler)
	defer server.Close()

	metrics := newSafeMetrics("")
	sink := newHTTPSink(server.URL, 0, nil, nil, metrics.httpStatusListener())

	// default transport rejects the self-signed TLS certificate.
	err := sink.Write(Event{})
	if err == nil || !strings.Contains(err.Error(), "x509") && !strings.Contains(err.Error(), "certificate") {
		t.Fatalf("expected a TLS verification error, got: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("unexpected error closing sink: %v", err)
	}

	tr := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	sink = newHTTPSink(server.URL, 0, nil, tr, metrics.httpStatusListener())
	if err := sink.Write(Event{}); err != nil {
		t.Fatalf("unexpected error writing event: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("unexpected error closing sink: %v", err)
	}

	metrics = newSafeMetrics("")
	server = httptest.NewServer(serverHandler)
	defer server.Close()
	sink = newHTTPSink(server.URL, 0, nil, nil, metrics.httpStatusListener())

	var expected EndpointMetrics
	expected.Statuses = make(map[string]int)

	closeL, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating listener: %v", err)
	}
	defer closeL.Close()
	go func() {
		for {
			c, err := closeL.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	for _, tc := range []struct {
		url        string
		isFailure  bool
		isError    bool
		statusCode int
	}{
		{statusCode: http.StatusOK},
		{statusCode: http.StatusOK},
		{statusCode: http.StatusTemporaryRedirect},
		{statusCode: http.StatusBadRequest, isFailure: true},
		{url: "http://" + closeL.Addr().String(), isError: true},
	} {
		switch {
		case tc.isFailure:
			expected.Failures++
		case tc.isError:
			expected.Errors++
		default:
			expected.Successes++
		}
		if tc.statusCode > 0 {
			expected.Statuses[fmt.Sprintf("%d %s", tc.statusCode, http.StatusText(tc.statusCode))]++
		}

		url := tc.url
		if url == "" {
			url = server.URL + "/"
		}
		url += fmt.Sprintf("?status=%d", tc.statusCode)
		sink.url = url

		err := sink.Write(Event{})
		if !tc.isFailure && !tc.isError {
			if err != nil {
				t.Fatalf("unexpected error writing event: %v", err)
			}
		} else if err == nil {
			t.Fatal("expected the endpoint to reject the request")
		}

		if !reflect.DeepEqual(metrics.EndpointMetrics, expected) {
			t.Fatalf("metrics not as expected: %#v != %#v", metrics.EndpointMetrics, expected)
		}
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("unexpected error closing sink: %v", err)
	}
	if err := sink.Close(); err == nil {
		t.Fatal("second close should have returned an error")
	}
}
