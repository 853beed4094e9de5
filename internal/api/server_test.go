// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/pipeline"
	"github.com/tomtom215/killfeed/internal/stream"
)

// fakeStream records operational calls against the stream controller.
type fakeStream struct {
	mu           sync.Mutex
	reconnects   int
	resubscribes int
}

func (f *fakeStream) Status() stream.Status {
	return stream.Status{State: "active", Connected: true, ConnectionID: "test-conn", SubscribedSystems: 2}
}

func (f *fakeStream) ForceReconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
}

func (f *fakeStream) ForceResubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resubscribes++
}

// fakePipeline records operational calls against the pipeline controller.
type fakePipeline struct {
	mu      sync.Mutex
	enabled bool
	forced  int
}

func (f *fakePipeline) Counters() pipeline.Counters {
	return pipeline.Counters{Notified: 3, Skipped: 7, Errored: 1}
}

func (f *fakePipeline) NotificationsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakePipeline) SetNotificationsEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *fakePipeline) ForceNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced++
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStream, *fakePipeline) {
	t.Helper()

	streamCtl := &fakeStream{}
	pipeCtl := &fakePipeline{enabled: true}
	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0, Timeout: 5 * time.Second}, streamCtl, pipeCtl)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, streamCtl, pipeCtl
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing standard collectors")
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Stream.ConnectionID != "test-conn" {
		t.Errorf("stream.connection_id = %q, want test-conn", body.Stream.ConnectionID)
	}
	if body.Pipeline.Notified != 3 || body.Pipeline.Skipped != 7 {
		t.Errorf("pipeline counters = %+v", body.Pipeline)
	}
	if !body.NotificationsEnabled {
		t.Error("notifications_enabled = false, want true")
	}
}

func TestReconnectEndpoint(t *testing.T) {
	ts, streamCtl, _ := newTestServer(t)

	resp := post(t, ts.URL+"/api/stream/reconnect")
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if streamCtl.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", streamCtl.reconnects)
	}
}

func TestResubscribeEndpoint(t *testing.T) {
	ts, streamCtl, _ := newTestServer(t)

	resp := post(t, ts.URL+"/api/stream/resubscribe")
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if streamCtl.resubscribes != 1 {
		t.Errorf("resubscribes = %d, want 1", streamCtl.resubscribes)
	}
}

func TestNotificationToggleEndpoints(t *testing.T) {
	ts, _, pipeCtl := newTestServer(t)

	resp := post(t, ts.URL+"/api/notifications/disable")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("disable status = %d, want 200", resp.StatusCode)
	}
	if pipeCtl.NotificationsEnabled() {
		t.Error("notifications still enabled after disable")
	}

	resp = post(t, ts.URL+"/api/notifications/enable")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("enable status = %d, want 200", resp.StatusCode)
	}
	if !pipeCtl.NotificationsEnabled() {
		t.Error("notifications still disabled after enable")
	}
}

func TestForceNextEndpoint(t *testing.T) {
	ts, _, pipeCtl := newTestServer(t)

	resp := post(t, ts.URL+"/api/debug/force-next")
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if pipeCtl.forced != 1 {
		t.Errorf("forced = %d, want 1", pipeCtl.forced)
	}
}

func TestUnknownRoute(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/nope")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
