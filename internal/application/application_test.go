package application

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/keyflat/internal/config"
)

func TestNewInitializesDependencies(t *testing.T) {
	cfg := baseTestConfig(":8085")
	logger := zaptest.NewLogger(t)

	app, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if app.server == nil || app.router == nil || app.handler == nil {
		t.Fatalf("expected server, router, and handler to be initialized")
	}
	if app.storage == nil || app.flattener == nil || app.metrics == nil {
		t.Fatalf("expected storage, flattener, and metrics to be initialized")
	}
	if app.Server() != app.server {
		t.Fatalf("Server accessor did not return underlying instance")
	}
	if app.server.Addr != ":8085" {
		t.Fatalf("expected address :8085, got %s", app.server.Addr)
	}
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	cfg := baseTestConfig(":0")
	cfg.StoreCapacity = 0

	if _, err := New(cfg, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected error for zero store capacity")
	}
}

func TestAppServesFlattenAndMetrics(t *testing.T) {
	app, err := New(baseTestConfig(":0"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	root := app.Server().Handler

	req := httptest.NewRequest(http.MethodPost, "/api/flatten", strings.NewReader(`{"a":{"b":1}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	root.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	metricsRec := httptest.NewRecorder()
	root.ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if metricsRec.Code != http.StatusOK {
		t.Fatalf("expected metrics status 200, got %d", metricsRec.Code)
	}
	body := metricsRec.Body.String()
	if !strings.Contains(body, "keyflat_stored_results 1") {
		t.Fatalf("expected stored results gauge to report 1 result")
	}
	if !strings.Contains(body, `keyflat_flatten_requests_total{format="json",outcome="ok"} 1`) {
		t.Fatalf("expected flatten counter to be exported")
	}
}

func TestAppEnforcesMaxDepth(t *testing.T) {
	cfg := baseTestConfig(":0")
	cfg.MaxDepth = 2
	app, err := New(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/flatten", strings.NewReader(`{"a":{"b":{"c":1}}}`))
	rec := httptest.NewRecorder()
	app.Server().Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestBuildRootHandlerWithoutMetrics(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	root := BuildRootHandler(api, nil)

	rec := httptest.NewRecorder()
	root.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/anything", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected API handler to serve /api/, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	root.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to be unrouted, got %d", rec.Code)
	}
}

func TestNewServerAppliesConfig(t *testing.T) {
	cfg := baseTestConfig("9090")
	handler := http.NewServeMux()

	server := NewServer(cfg, handler)
	if server.Addr != ":9090" {
		t.Fatalf("expected address :9090, got %s", server.Addr)
	}
	if server.Handler != handler {
		t.Fatalf("expected handler to be applied")
	}
	if server.ReadHeaderTimeout != cfg.ReadHeaderTimeout ||
		server.WriteTimeout != cfg.WriteTimeout ||
		server.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("server timeouts do not match configuration")
	}
}

func baseTestConfig(port string) config.Config {
	return config.Config{
		Port:                 port,
		ShutdownGracePeriod:  50 * time.Millisecond,
		ReadHeaderTimeout:    20 * time.Millisecond,
		WriteTimeout:         30 * time.Millisecond,
		IdleTimeout:          40 * time.Millisecond,
		EnableRequestLogging: false,
		LogLevel:             "info",
		RateLimitRPS:         0,
		RateLimitBurst:       0,
		MaxDepth:             16,
		MaxEntries:           1 << 12,
		MaxBodyBytes:         1 << 20,
		StoreCapacity:        4,
	}
}
