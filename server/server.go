// Package server exposes the execution lifecycle engine over HTTP: trigger
// endpoints, status/results/history reads, and the worker callback surface.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/testflow/testflow/artifact"
	"github.com/testflow/testflow/catalog"
	"github.com/testflow/testflow/conf"
	"github.com/testflow/testflow/errors"
	"github.com/testflow/testflow/execution"
	"github.com/testflow/testflow/history"
	"github.com/testflow/testflow/lifecycle"
	"github.com/testflow/testflow/logger"
	"github.com/testflow/testflow/queue"
	"github.com/testflow/testflow/suite"
)

// Server wires the lifecycle manager, aggregation engine, and history
// service behind an HTTP API. All dependencies are injected at construction.
type Server struct {
	db         *sql.DB
	cfg        *conf.Config
	store      *execution.Store
	manager    *lifecycle.Manager
	aggregator *suite.Aggregator
	history    *history.Service
	queue      *queue.Queue
	log        *zap.SugaredLogger

	mux        *http.ServeMux
	httpServer *http.Server
}

// New builds a server and all its components over one database handle
func New(db *sql.DB, cfg *conf.Config) *Server {
	log := logger.Named("server")

	store := execution.NewStore(db)
	q := queue.New(db)
	if cfg.Queue.RedeliverAfterSeconds > 0 {
		q.SetRedeliverAfter(time.Duration(cfg.Queue.RedeliverAfterSeconds) * time.Second)
	}
	q.SetMaxInFlight(cfg.Queue.MaxInFlight)

	s := &Server{
		db:         db,
		cfg:        cfg,
		store:      store,
		manager:    lifecycle.NewManager(store, q, catalog.NewSQLiteLookup(db), artifact.NewBaseURLResolver(cfg.Artifact.BaseURL), logger.Named("lifecycle")),
		aggregator: suite.NewAggregator(store, logger.Named("suite")),
		history:    history.NewService(store, cfg.History.DefaultLimit, cfg.History.MaxLimit),
		queue:      q,
		log:        log,
		mux:        http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// Queue exposes the work queue for in-process consumers
func (s *Server) Queue() *queue.Queue {
	return s.queue
}

// Start runs the HTTP server until Stop is called or ListenAndServe fails
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infow("HTTP server listening",
		logger.FieldAddress, addr,
		logger.FieldPort, s.cfg.Server.Port,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Infow("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	return nil
}

// Handler returns the routed handler, used directly by tests
func (s *Server) Handler() http.Handler {
	return s.mux
}
