package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/crypto"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/limits"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/api"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/builder"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/queue"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/store"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the CodeFlowOps application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	builder    *builder.Builder
	queue      *queue.Queue
	pool       *workers.Pool
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	b, err := builder.New(cfg.Docker.Host, logger)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	credKey := crypto.DeriveKey(cfg.Secrets.Passphrase)

	q := queue.New(s, queue.Config{
		RetryDelay:        cfg.Queue.RetryDelay,
		ProcessingTimeout: cfg.Queue.ProcessingTimeout,
		SweepInterval:     cfg.Queue.SweepInterval,
	}, logger)
	locks := queue.NewDeploymentLock(s, cfg.Deploy.LockTTL, logger)

	orchestrator := workers.NewOrchestrator(s, locks, b, workers.DefaultProviderFactory, credKey, logger).
		WithHealthGate(cfg.Deploy.HealthAttempts, cfg.Deploy.HealthInterval)

	pool := workers.NewPool(q, orchestrator, workers.Config{
		Size:         cfg.Workers.Count,
		PollInterval: cfg.Workers.PollInterval,
		JobTimeout:   cfg.Workers.JobTimeout,
	}, logger)

	var quota api.QuotaChecker = api.UnlimitedQuota{}
	if cfg.Quota.Enabled() {
		quota = api.NewStoreQuota(s, limits.TenantLimits{
			MaxActiveDeployments: cfg.Quota.MaxActiveDeployments,
			MaxTotalDeployments:  cfg.Quota.MaxTotalDeployments,
			MaxMemoryMB:          cfg.Quota.MaxMemoryMB,
		})
	}

	handler := api.NewHandler(s, q, locks, quota, credKey, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		builder:    b,
		queue:      q,
		pool:       pool,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	s.queue.Start()
	s.pool.Start()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Workers drain their in-flight jobs before the queue and store close.
	s.pool.Stop()
	s.queue.Stop()

	if err := s.builder.Close(); err != nil {
		s.logger.Error("docker client close error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
