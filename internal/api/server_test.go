// Package api_test exercises the control server over real HTTP.
package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/api"
	"github.com/atlas-desktop/adaptive-engine/internal/broker"
	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/internal/engine"
	"github.com/atlas-desktop/adaptive-engine/internal/stream"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"go.uber.org/zap"
)

type idleStream struct {
	ch chan stream.Event
}

func (s *idleStream) Subscribe(context.Context, []string, types.Timeframe) (<-chan stream.Event, error) {
	return s.ch, nil
}

func (s *idleStream) Close() error { return nil }

func setupTestServer(t *testing.T) (*engine.Engine, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	cfg := types.DefaultEngineConfig()
	clk := clock.NewFake(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	eng := engine.New(logger, cfg, engine.Deps{
		MarketData: &idleStream{ch: make(chan stream.Event)},
		Broker:     broker.NewPaper(logger, clk, cfg.InitialCapital),
		Clock:      clk,
	})

	serverConfig := &types.ServerConfig{
		Host:          "localhost",
		Port:          0,
		WebSocketPath: "/ws",
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  5 * time.Second,
		EnableMetrics: true,
	}
	server := api.NewServer(logger, serverConfig, eng)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return eng, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %v", result["status"])
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/engine/snapshot")
	if err != nil {
		t.Fatalf("snapshot request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var snap engine.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snap.Running {
		t.Error("engine reported running before start")
	}
	if _, ok := snap.Symbols["BTCUSDT"]; !ok {
		t.Errorf("snapshot missing tracked symbol, got %v", snap.Symbols)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/engine/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start returned %d", resp.StatusCode)
	}

	// Starting twice conflicts: the engine is single-use.
	resp, err = http.Post(ts.URL+"/api/v1/engine/start", "application/json", nil)
	if err != nil {
		t.Fatalf("second start request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start returned %d; want 409", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/v1/engine/stop?timeout=2s", "application/json", nil)
	if err != nil {
		t.Fatalf("stop request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop returned %d", resp.StatusCode)
	}
}

func TestFeedbackEndpointsAcceptUnknownIDs(t *testing.T) {
	_, ts := setupTestServer(t)

	for _, path := range []string{
		"/api/v1/signals/sig_missing/accept",
		"/api/v1/signals/sig_missing/skip",
	} {
		resp, err := http.Post(ts.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("post %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned %d", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics returned %d", resp.StatusCode)
	}
}
