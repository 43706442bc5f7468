// Copyright 2025 Certen Protocol
//
// Package server is the relayer's admin HTTP surface: manual message
// insertion, health, Prometheus metrics, and operator replay of
// recorded payloads/transactions.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperbridge/relayer-core/pkg/kvstore"
	"github.com/hyperbridge/relayer-core/pkg/metrics"
	"github.com/hyperbridge/relayer-core/pkg/pgstore"
	"github.com/hyperbridge/relayer-core/pkg/rlog"
)

// Server is the admin HTTP server bound to one address, exposing
// /messages, /health, /metrics, and /payloads/{uuid}.
type Server struct {
	httpServer *http.Server
	health     *HealthStatus
}

// Config configures the admin server's dependencies. Dbs maps origin
// domain to that origin's kvstore.Store, mirroring the original
// relayer's per-domain database map in its manual message insertion API.
type Config struct {
	Addr    string
	Dbs     map[uint32]kvstore.Store
	Store   *pgstore.Store
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

// NewServer builds the admin HTTP server's route table. /payloads/{uuid}
// is only registered when cfg.Store is non-nil; /metrics only when
// cfg.Metrics is non-nil, so a relayer running without the Postgres
// backend or metrics enabled doesn't expose dead endpoints.
func NewServer(cfg Config) *Server {
	logger := rlog.OrDefault(cfg.Logger, "server")

	health := newHealthStatus()
	health.SetKVStore("connected")
	if cfg.Store != nil {
		health.SetDatabase("connected")
	} else {
		health.SetDatabase("disabled")
	}

	mux := http.NewServeMux()

	messages := &MessagesHandler{dbs: cfg.Dbs, logger: logger}
	mux.HandleFunc("/messages", messages.HandleInsertMessages)
	mux.HandleFunc("/health", health.ServeHTTP)

	if cfg.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	if cfg.Store != nil {
		payloads := &PayloadsHandler{store: cfg.Store, logger: logger}
		mux.HandleFunc("/payloads/", payloads.HandleGetPayload)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		health: health,
	}
}

// Health returns the server's health tracker so the caller (typically
// cmd/relayer) can update component states as chains connect or drop.
func (s *Server) Health() *HealthStatus {
	return s.health
}

// Run starts the server and blocks until ctx is canceled, at which point
// it shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
