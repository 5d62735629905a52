// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wingedpig/replayhost/internal/events"
)

type fakeHost struct {
	mu      sync.Mutex
	opened  []string
	synced  []string
	closed  int
	openErr error
}

func (h *fakeHost) OpenWARC(ctx context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, path)
	return h.openErr
}

func (h *fakeHost) SyncDat(ctx context.Context, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.synced = append(h.synced, key)
	return nil
}

func (h *fakeHost) AsyncResponse() events.AsyncResponsePayload {
	return events.AsyncResponsePayload{
		Config: events.AsyncConfig{Host: "http://localhost:8123/", Version: "player 1.0"},
		Stdout: "line one<BR>line two<BR>",
	}
}

func (h *fakeHost) WindowClosed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
}

func (h *fakeHost) Status() interface{} {
	return map[string]interface{}{"state": "running", "generation": 3}
}

func (h *fakeHost) openedPaths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opened...)
}

type testServer struct {
	srv  *Server
	http *httptest.Server
	bus  *events.MemoryEventBus
	host *fakeHost
}

func newTestServer(t *testing.T, metricsHandler http.Handler) *testServer {
	t.Helper()
	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})
	host := &fakeHost{}
	srv := NewServer(ServerConfig{Host: "127.0.0.1"}, Dependencies{
		Bus:            bus,
		Host:           host,
		MetricsHandler: metricsHandler,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		bus.Close()
	})
	return &testServer{srv: srv, http: ts, bus: bus, host: host}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/control/ws"
	before := ts.srv.Clients()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return ts.srv.Clients() == before+1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSocket_AsyncCallRepliesToRequesterOnly(t *testing.T) {
	ts := newTestServer(t, nil)
	requester := ts.dial(t)
	other := ts.dial(t)

	require.NoError(t, requester.WriteJSON(Message{Type: CmdAsyncCall}))

	msg := readMessage(t, requester)
	assert.Equal(t, events.EventAsyncResponse, msg.Type)

	var payload events.AsyncResponsePayload
	require.NoError(t, msg.Decode(&payload))
	assert.Equal(t, "http://localhost:8123/", payload.Config.Host)
	assert.Equal(t, "player 1.0", payload.Config.Version)
	assert.Equal(t, "line one<BR>line two<BR>", payload.Stdout)

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var stray Message
	assert.Error(t, other.ReadJSON(&stray))
}

func TestSocket_BroadcastsBusMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.dial(t)
	b := ts.dial(t)

	require.NoError(t, ts.bus.Publish(context.Background(), events.Event{
		Type:    events.EventIndexing,
		Payload: events.IndexingPayload{Host: "http://localhost:8123/", Source: "/tmp/a.warc"},
	}))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, events.EventIndexing, msg.Type)
		var p events.IndexingPayload
		require.NoError(t, msg.Decode(&p))
		assert.Equal(t, "/tmp/a.warc", p.Source)
	}
}

func TestSocket_Commands(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	open, err := NewMessage(CmdOpenWARC, OpenWARCPayload{Path: "/tmp/a.warc.gz"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(open))

	syncMsg, err := NewMessage(CmdSyncDat, SyncDatPayload{Key: "dat://abc"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(syncMsg))

	require.NoError(t, conn.WriteJSON(Message{Type: CmdWindowClosed}))

	require.Eventually(t, func() bool {
		ts.host.mu.Lock()
		defer ts.host.mu.Unlock()
		return ts.host.closed == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"/tmp/a.warc.gz"}, ts.host.openedPaths())
	ts.host.mu.Lock()
	assert.Equal(t, []string{"dat://abc"}, ts.host.synced)
	ts.host.mu.Unlock()
}

func TestSocket_CommandErrorsReplyWithError(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.host.openErr = errors.New("Sorry, only WARC or ARC files can be opened")
	conn := ts.dial(t)

	open, err := NewMessage(CmdOpenWARC, OpenWARCPayload{Path: "/tmp/a.txt"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(open))

	msg := readMessage(t, conn)
	assert.Equal(t, events.EventError, msg.Type)
	var p events.ErrorPayload
	require.NoError(t, msg.Decode(&p))
	assert.Contains(t, p.Message, "Sorry")

	require.NoError(t, conn.WriteJSON(Message{Type: "reticulate"}))
	msg = readMessage(t, conn)
	assert.Equal(t, events.EventError, msg.Type)
	require.NoError(t, msg.Decode(&p))
	assert.Contains(t, p.Message, "unknown message type")
}

func TestSocket_ClientCountDropsOnClose(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)
	conn.Close()

	require.Eventually(t, func() bool { return ts.srv.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.http.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "running", body.Data["state"])
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, ts.bus.Publish(ctx, events.Event{Type: events.EventInitializing, Generation: 1}))
	require.NoError(t, ts.bus.Publish(ctx, events.Event{Type: events.EventIndexing, Generation: 2}))

	resp, err := http.Get(ts.http.URL + "/api/v1/events?generation=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data []events.Event `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, events.EventIndexing, body.Data[0].Type)
}

func TestCommandEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	post := func(body string) *http.Response {
		resp, err := http.Post(ts.http.URL+"/api/v1/commands", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post(`{"type":"open-warc","payload":{"path":"/tmp/b.har"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"/tmp/b.har"}, ts.host.openedPaths())

	resp = post(`{"type":"async-call"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data Message `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, events.EventAsyncResponse, body.Data.Type)

	resp = post(`{"type":"open-warc","payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(`not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.http.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ts = newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("replayhost_up 1\n"))
	}))
	resp, err = http.Get(ts.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ListenServeShutdown(t *testing.T) {
	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})
	defer bus.Close()
	srv := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, Dependencies{Bus: bus, Host: &fakeHost{}})

	require.NoError(t, srv.Listen())
	require.NotEmpty(t, srv.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/status")
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestLogging_PassesThrough(t *testing.T) {
	for _, debug := range []bool{false, true} {
		handler := Logging(debug)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}
}
