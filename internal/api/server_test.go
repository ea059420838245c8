// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vmixd/internal/bus"
	"github.com/ManuGH/vmixd/internal/manager"
	"github.com/ManuGH/vmixd/internal/state"
	"github.com/ManuGH/vmixd/internal/vmix"
)

// stubService scripts the supervisor surface per test.
type stubService struct {
	bus *bus.Bus

	connectFn    func(manager.ConnectRequest) (state.Connection, error)
	disconnectFn func(host string) error
	refreshFn    func(host string) error
	statuses     []state.Connection
	inputsFn     func(host string) ([]state.Input, error)
	listsFn      func(host string) ([]state.VideoListInput, error)
	functionFn   func(host, name string, params map[string]string) error
	selectFn     func(host string, number, index int) error
	autoRefresh  map[string]state.AutoRefreshConfig
}

func newStubService() *stubService {
	return &stubService{bus: bus.New(), autoRefresh: map[string]state.AutoRefreshConfig{}}
}

func (s *stubService) Connect(ctx context.Context, req manager.ConnectRequest) (state.Connection, error) {
	if s.connectFn != nil {
		return s.connectFn(req)
	}
	return state.Connection{Host: req.Host, Status: state.StatusConnected}, nil
}

func (s *stubService) Disconnect(ctx context.Context, host string) error {
	if s.disconnectFn != nil {
		return s.disconnectFn(host)
	}
	return nil
}

func (s *stubService) Refresh(ctx context.Context, host string) error {
	if s.refreshFn != nil {
		return s.refreshFn(host)
	}
	return nil
}

func (s *stubService) Statuses() []state.Connection { return s.statuses }

func (s *stubService) Counts() (int, int) {
	connected := 0
	for _, c := range s.statuses {
		if c.Status == state.StatusConnected {
			connected++
		}
	}
	return connected, len(s.statuses) - connected
}

func (s *stubService) GetInputs(ctx context.Context, host string) ([]state.Input, error) {
	if s.inputsFn != nil {
		return s.inputsFn(host)
	}
	return nil, nil
}

func (s *stubService) GetVideoLists(ctx context.Context, host string) ([]state.VideoListInput, error) {
	if s.listsFn != nil {
		return s.listsFn(host)
	}
	return nil, nil
}

func (s *stubService) SendFunction(ctx context.Context, host, name string, params map[string]string) error {
	if s.functionFn != nil {
		return s.functionFn(host, name, params)
	}
	return nil
}

func (s *stubService) SelectVideoListItem(ctx context.Context, host string, number, index int) error {
	if s.selectFn != nil {
		return s.selectFn(host, number, index)
	}
	return nil
}

func (s *stubService) SetAutoRefreshConfig(host string, cfg state.AutoRefreshConfig) {
	s.autoRefresh[host] = cfg
}

func (s *stubService) GetAutoRefreshConfig(host string) (state.AutoRefreshConfig, bool) {
	cfg, ok := s.autoRefresh[host]
	return cfg, ok
}

func (s *stubService) AllAutoRefreshConfigs() map[string]state.AutoRefreshConfig {
	return s.autoRefresh
}

func (s *stubService) Events() *bus.Bus { return s.bus }

func newTestServer(t *testing.T, svc Service) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(svc, "test").Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestConnectEndpoint(t *testing.T) {
	svc := newStubService()
	var got manager.ConnectRequest
	svc.connectFn = func(req manager.ConnectRequest) (state.Connection, error) {
		got = req
		return state.Connection{Host: req.Host, Port: 8088, Transport: state.TransportHTTP, Status: state.StatusConnected}, nil
	}
	ts := newTestServer(t, svc)

	resp := postJSON(t, ts.URL+"/api/v1/connections", map[string]any{
		"host": "192.168.1.50", "transport": "http", "label": "Main",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "192.168.1.50", got.Host)
	assert.Equal(t, "Main", got.Label)

	var rec state.Connection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, state.StatusConnected, rec.Status)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestConnectValidation(t *testing.T) {
	ts := newTestServer(t, newStubService())

	for name, body := range map[string]map[string]any{
		"missing host":  {"transport": "http"},
		"bad transport": {"host": "h", "transport": "serial"},
		"bad port":      {"host": "h", "port": 70000},
	} {
		resp := postJSON(t, ts.URL+"/api/v1/connections", body)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestConnectUpstreamFailureIs502(t *testing.T) {
	svc := newStubService()
	svc.connectFn = func(req manager.ConnectRequest) (state.Connection, error) {
		return state.Connection{}, &manager.ConnectError{Host: req.Host, Err: errors.New("connection refused")}
	}
	ts := newTestServer(t, svc)

	resp := postJSON(t, ts.URL+"/api/v1/connections", map[string]any{"host": "h"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestUnknownHostIs404(t *testing.T) {
	svc := newStubService()
	svc.refreshFn = func(host string) error { return manager.ErrUnknownHost }
	svc.inputsFn = func(host string) ([]state.Input, error) { return nil, manager.ErrUnknownHost }
	ts := newTestServer(t, svc)

	resp, err := http.Post(ts.URL+"/api/v1/connections/nope/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/connections/nope/inputs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransportErrorIs502(t *testing.T) {
	svc := newStubService()
	svc.functionFn = func(host, name string, params map[string]string) error {
		return &vmix.Error{Sentinel: vmix.ErrTimeout, Op: "function", Host: host, Err: context.DeadlineExceeded}
	}
	ts := newTestServer(t, svc)

	resp := postJSON(t, ts.URL+"/api/v1/connections/h/function", map[string]any{"function": "Cut"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestListAndGetConnection(t *testing.T) {
	svc := newStubService()
	svc.statuses = []state.Connection{
		{Host: "a", Status: state.StatusConnected},
		{Host: "b", Status: state.StatusReconnecting},
	}
	ts := newTestServer(t, svc)

	resp, err := http.Get(ts.URL + "/api/v1/connections")
	require.NoError(t, err)
	var list []state.Connection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Len(t, list, 2)

	resp, err = http.Get(ts.URL + "/api/v1/connections/b")
	require.NoError(t, err)
	var rec state.Connection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	resp.Body.Close()
	assert.Equal(t, state.StatusReconnecting, rec.Status)

	resp, err = http.Get(ts.URL + "/api/v1/connections/c")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSelectEndpointParsesNumberAndIndex(t *testing.T) {
	svc := newStubService()
	var gotNumber, gotIndex int
	svc.selectFn = func(host string, number, index int) error {
		gotNumber, gotIndex = number, index
		return nil
	}
	ts := newTestServer(t, svc)

	resp := postJSON(t, ts.URL+"/api/v1/connections/h/videolists/3/select", map[string]any{"index": 2})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 3, gotNumber)
	assert.Equal(t, 2, gotIndex)

	resp = postJSON(t, ts.URL+"/api/v1/connections/h/videolists/zero/select", map[string]any{"index": 2})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/v1/connections/h/videolists/3/select", map[string]any{"index": -1})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAutoRefreshRoundTrip(t *testing.T) {
	svc := newStubService()
	ts := newTestServer(t, svc)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/connections/h/autorefresh",
		strings.NewReader(`{"enabled":true,"intervalSeconds":5}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/connections/h/autorefresh")
	require.NoError(t, err)
	var cfg state.AutoRefreshConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	resp.Body.Close()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, uint(5), cfg.IntervalSeconds)

	resp, err = http.Get(ts.URL + "/api/v1/connections/unknown/autorefresh")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/autorefresh")
	require.NoError(t, err)
	var all map[string]state.AutoRefreshConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	resp.Body.Close()
	assert.Len(t, all, 1)
	assert.True(t, all["h"].Enabled)
}

func TestHealthz(t *testing.T) {
	svc := newStubService()
	svc.statuses = []state.Connection{{Host: "a", Status: state.StatusConnected}}
	ts := newTestServer(t, svc)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status      string         `json:"status"`
		Version     string         `json:"version"`
		Connections map[string]int `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Connections["connected"])
}

func TestEventStreamDeliversBusEvents(t *testing.T) {
	svc := newStubService()
	ts := newTestServer(t, svc)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer ws.Close()

	// The subscription is registered during the upgrade; give the
	// handler a moment before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for svc.bus.Stats().Subscribers == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	svc.bus.Publish(bus.Event{
		Type:       bus.TypeStatusUpdated,
		Host:       "192.168.1.50",
		Connection: &state.Connection{Host: "192.168.1.50", Status: state.StatusConnected},
	})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev bus.Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, bus.TypeStatusUpdated, ev.Type)
	assert.Equal(t, "192.168.1.50", ev.Host)
	require.NotNil(t, ev.Connection)
	assert.Equal(t, state.StatusConnected, ev.Connection.Status)
}
