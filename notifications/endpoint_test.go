package notifications

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewEndpoint(t *testing.T) {
	testEvents := []Event{createTestEvent(EventActionPull, "test", "blob")}

	t.Run("synchronous", func(t *testing.T) {
		server, sendResponseCh := createBlockingServer(t)
		defer server.Close()
		ep := createTestEndpoint(true, server.URL)

		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			if err := ep.Write(testEvents...); err != nil {
				t.Error(err)
			}
		}()

		sendResponseCh <- struct{}{}

		select {
		case <-writeDone:
			t.Error("goroutine should not have returned yet")
		default:
		}

		verifyNumSuccesses(t, ep, 0)

		sendResponseCh <- struct{}{}
		<-writeDone

		verifyNumSuccesses(t, ep, 1)
	})

	t.Run("asynchronous", func(t *testing.T) {
		server, sendResponseCh := createBlockingServer(t)
		defer server.Close()
		ep := createTestEndpoint(false, server.URL)

		if err := ep.Write(testEvents...); err != nil {
			t.Error(err)
		}

		closeDone := make(chan struct{})
		go func() {
			defer close(closeDone)
			if err := ep.Sink.Close(); err != nil {
				t.Error(err)
			}
		}()

		sendResponseCh <- struct{}{}
		verifyNumSuccesses(t, ep, 0)

		sendResponseCh <- struct{}{}
		<-closeDone

		verifyNumSuccesses(t, ep, 1)
	})
}

func verifyNumSuccesses(t *testing.T, ep *Endpoint, expected int) {
	t.Helper()
	ep.metrics.Lock()
	successes := ep.metrics.Successes
	ep.metrics.Unlock()
	if successes != expected {
		t.Errorf("should have received %d successful response(s), got %d", expected, successes)
	}
}

// createBlockingServer creates a server that only responds once two values
// have been sent on the returned channel, letting tests control exactly
// when a request completes.
func createBlockingServer(t *testing.T) (*httptest.Server, chan struct{}) {
	sendResponseCh := make(chan struct{})
	serverHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		<-sendResponseCh
		<-sendResponseCh
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewTLSServer(serverHandler)
	return server, sendResponseCh
}

func createTestEndpoint(sync bool, url string) *Endpoint {
	return NewEndpoint("test-endpoint", url, EndpointConfig{
		Sync:                  sync,
		Transport:             &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		Timeout:               10 * time.Second,
		testOnlyDoNotRegister: true,
	})
}
