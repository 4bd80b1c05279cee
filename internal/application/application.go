package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/keyflat/internal/api"
	"github.com/eugenenazirov/keyflat/internal/config"
	"github.com/eugenenazirov/keyflat/internal/flatten"
	"github.com/eugenenazirov/keyflat/internal/metrics"
	"github.com/eugenenazirov/keyflat/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage   storage.Storage
	flattener flatten.Flattener
	metrics   *metrics.Metrics
	handler   *api.Handler
	router    http.Handler
	logger    *zap.Logger
	server    *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store, err := storage.NewMemoryStorage(cfg.StoreCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create result store: %w", err)
	}

	m := metrics.New()
	if err := m.RegisterStoredResults(store.Len); err != nil {
		return nil, fmt.Errorf("failed to register store metrics: %w", err)
	}

	f := flatten.New(
		flatten.WithMaxDepth(cfg.MaxDepth),
		flatten.WithMaxEntries(cfg.MaxEntries),
		flatten.WithCycleDetection(true),
	)
	handler := api.NewHandler(f, store,
		api.WithMetrics(m),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithMaxNesting(cfg.MaxDepth),
		api.WithMaxNodes(cfg.MaxEntries),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		storage:   store,
		flattener: f,
		metrics:   m,
		handler:   handler,
		router:    apiRouter,
		logger:    logger,
		server:    NewServer(cfg, BuildRootHandler(apiRouter, m.Handler())),
	}, nil
}

// BuildRootHandler mounts the API under /api/ and the Prometheus exposition
// endpoint under /metrics. A nil metricsHandler leaves /metrics unrouted.
func BuildRootHandler(apiHandler, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
