package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tracelot/tracelot/service/config"
	"github.com/tracelot/tracelot/service/db"
	"github.com/tracelot/tracelot/service/fractional"
	"github.com/tracelot/tracelot/service/metrics"
)

// FractionalService is the part of the fractionalization service the
// handlers need. Declared here so tests can substitute a fake.
type FractionalService interface {
	Fractionalize(ctx context.Context, params fractional.FractionalizeParams) (*fractional.FractionalizeResult, error)
	Distribute(ctx context.Context, params fractional.DistributeParams) (*fractional.DistributeResult, error)
	GetTokenInfo(ctx context.Context, shareTokenMint string) (*fractional.TokenInfo, error)
	ListTokens(ctx context.Context, params db.ListFractionalTokensParams) ([]*db.FractionalToken, error)
	ListTransfers(ctx context.Context, params db.ListShareTransfersParams) ([]*db.ShareTransfer, error)
}

// Verifier checks whether a mirrored mint address exists on chain.
type Verifier interface {
	MintExistsByAddress(ctx context.Context, address string) (bool, error)
	Cluster() string
}

// Server represents the HTTP server for the traceability service.
type Server struct {
	addr       string
	cfg        *config.Config
	store      *db.Store
	fractional FractionalService
	verifier   Verifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The verifier is optional; without it the item verify endpoint reports the
// ledger as unavailable. The metrics is optional; if nil, the metrics
// endpoint won't be available.
func New(addr string, cfg *config.Config, store *db.Store, svc FractionalService, verifier Verifier, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		cfg:        cfg,
		store:      store,
		fractional: svc,
		verifier:   verifier,
		metrics:    m,
		logger:     logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Route registration with per-route metrics.
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, pattern)(h))
	}

	// Product routes
	handle("POST /api/v1/products", handleCreateProduct(s.store, s.logger))
	handle("GET /api/v1/products", handleListProducts(s.store, s.logger))
	handle("GET /api/v1/products/{gtin}", handleGetProduct(s.store, s.logger))
	handle("PUT /api/v1/products/{gtin}", handleUpdateProduct(s.store, s.logger))
	handle("PUT /api/v1/products/{gtin}/deactivate", handleDeactivateProduct(s.store, s.logger))
	handle("DELETE /api/v1/products/{gtin}", handleDeleteProduct(s.store, s.logger))
	handle("GET /api/v1/products/{gtin}/stats", handleGetProductStats(s.store, s.logger))

	// Batch routes
	handle("POST /api/v1/batches", handleCreateBatch(s.store, s.logger))
	handle("GET /api/v1/batches", handleListBatches(s.store, s.logger))
	handle("GET /api/v1/batches/{id}", handleGetBatch(s.store, s.logger))
	handle("PUT /api/v1/batches/{id}", handleUpdateBatch(s.store, s.logger))
	handle("DELETE /api/v1/batches/{id}", handleDeleteBatch(s.store, s.logger))
	handle("GET /api/v1/batches/{id}/stats", handleGetBatchStats(s.store, s.logger))

	// Item routes
	handle("POST /api/v1/items", handleCreateItem(s.store, s.logger))
	handle("GET /api/v1/items", handleListItems(s.store, s.logger))
	handle("GET /api/v1/items/{serialNumber}", handleGetItem(s.store, s.logger))
	handle("PUT /api/v1/items/{serialNumber}", handleUpdateItem(s.store, s.logger))
	handle("PUT /api/v1/items/{serialNumber}/quality", handleUpdateItemQuality(s.store, s.logger))
	handle("GET /api/v1/items/{serialNumber}/verify", handleVerifyItem(s.store, s.verifier, s.logger))
	handle("DELETE /api/v1/items/{serialNumber}", handleDeleteItem(s.store, s.logger))

	// Fractionalization routes
	handle("POST /api/v1/fractionalize", handleFractionalize(s.fractional, s.logger))
	handle("POST /api/v1/fractionalize/distribute", handleDistribute(s.fractional, s.logger))
	handle("GET /api/v1/fractionalize/token/{shareTokenMint}", handleGetTokenInfo(s.fractional, s.logger))
	handle("GET /api/v1/fractionalize/tokens", handleListTokens(s.fractional, s.logger))
	handle("GET /api/v1/fractionalize/transfers", handleListTransfers(s.fractional, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	handler := corsMiddleware(requestIDMiddleware(mux))

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // distributions transfer sequentially
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags each request with an id for log correlation.
// Incoming X-Request-ID headers are honored so ids survive proxies.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
