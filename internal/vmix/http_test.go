// SPDX-License-Identifier: MIT

package vmix

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// newTestHTTP points an HTTPClient at a httptest server.
func newTestHTTP(t *testing.T, handler http.Handler, timeout time.Duration) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	c := &HTTPClient{
		host: u.Hostname(),
		base: srv.URL + "/api",
		http: &http.Client{Timeout: timeout},
	}
	return c, srv
}

func TestHTTPFetchStatus(t *testing.T) {
	c, _ := newTestHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(statusDoc))
	}), time.Second)

	snap, err := c.FetchStatus(context.Background())
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if snap.Version != "27.0.0.49" {
		t.Errorf("version = %q", snap.Version)
	}
	if len(snap.Inputs) != 3 || len(snap.VideoLists) != 1 {
		t.Errorf("inputs=%d videolists=%d", len(snap.Inputs), len(snap.VideoLists))
	}
}

func TestHTTPSendFunctionEncodesQuery(t *testing.T) {
	var got url.Values
	c, _ := newTestHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte("Function completed successfully"))
	}), time.Second)

	err := c.SendFunction(context.Background(), "Fade", map[string]string{"Input": "2", "Duration": "500"})
	if err != nil {
		t.Fatalf("SendFunction: %v", err)
	}
	if got.Get("Function") != "Fade" || got.Get("Input") != "2" || got.Get("Duration") != "500" {
		t.Fatalf("query = %v", got)
	}
}

func TestHTTPSelectVideoListItemIsOneBasedOnWire(t *testing.T) {
	var got url.Values
	c, _ := newTestHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
	}), time.Second)

	if err := c.SelectVideoListItem(context.Background(), 3, 0); err != nil {
		t.Fatalf("SelectVideoListItem: %v", err)
	}
	if got.Get("Function") != "SelectIndex" {
		t.Fatalf("function = %q", got.Get("Function"))
	}
	if got.Get("Input") != "3" || got.Get("Value") != "1" {
		t.Fatalf("Input=%q Value=%q, want 3/1", got.Get("Input"), got.Get("Value"))
	}

	if err := c.SelectVideoListItem(context.Background(), 3, -1); err == nil {
		t.Fatal("negative index must be rejected")
	}
}

func TestHTTPNon200IsProtocolError(t *testing.T) {
	c, _ := newTestHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}), time.Second)

	_, err := c.FetchStatus(context.Background())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestHTTPMalformedBodyIsProtocolError(t *testing.T) {
	c, _ := newTestHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<vmix><version>"))
	}), time.Second)

	_, err := c.FetchStatus(context.Background())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestHTTPTimeoutClassified(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c, _ := newTestHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}), 50*time.Millisecond)

	_, err := c.FetchStatus(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestHTTPUnreachableIsNetworkError(t *testing.T) {
	c := NewHTTP("127.0.0.1", 1, 200*time.Millisecond) // nothing listens on port 1
	_, err := c.FetchStatus(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNetwork) && !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want network or timeout sentinel", err)
	}
}
