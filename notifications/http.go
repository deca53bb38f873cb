package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	events "github.com/docker/go-events"
)

// httpStatusListener is notified of the outcome of each httpSink write, used
// to drive the endpoint's metrics without coupling the sink to a particular
// metrics backend.
type httpStatusListener interface {
	success(status int, events ...Event)
	failure(status int, events ...Event)
	err(err error, events ...Event)
}

// httpSink posts event envelopes to a single HTTP endpoint. It is grounded
// on the shape http_test.go exercises: newHTTPSink(url, timeout, headers,
// transport, listener), a mutable url field tests reassign directly, and a
// Close that errors on a second call.
type httpSink struct {
	url       string
	headers   http.Header
	client    *http.Client
	listener  httpStatusListener

	mu     sync.Mutex
	closed bool
}

var _ events.Sink = &httpSink{}

func newHTTPSink(u string, timeout time.Duration, headers http.Header, transport *http.Transport, listener httpStatusListener) *httpSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpSink{
		url:      u,
		headers:  headers,
		client:   &http.Client{Timeout: timeout, Transport: transport},
		listener: listener,
	}
}

// Write posts event as a single-element Envelope, matching the teacher's
// http sink wire format.
func (h *httpSink) Write(event events.Event) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrSinkClosed
	}

	e := event.(Event)
	body, err := json.Marshal(Envelope{Events: []Event{e}})
	if err != nil {
		if h.listener != nil {
			h.listener.err(err, e)
		}
		return err
	}

	req, err := http.NewRequest(http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		if h.listener != nil {
			h.listener.err(err, e)
		}
		return err
	}
	req.Header.Set("Content-Type", EventsMediaType)
	for k, vs := range h.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if h.listener != nil {
			h.listener.err(err, e)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		if h.listener != nil {
			h.listener.success(resp.StatusCode, e)
		}
		return nil
	}

	if h.listener != nil {
		h.listener.failure(resp.StatusCode, e)
	}
	return fmt.Errorf("notifications: %s responded with status %d %s", h.url, resp.StatusCode, http.StatusText(resp.StatusCode))
}

func (h *httpSink) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("httpSink: already closed")
	}
	h.closed = true
	return nil
}
