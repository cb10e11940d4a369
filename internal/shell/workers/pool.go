package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/queue"
)

// =============================================================================
// Configuration
// =============================================================================

const (
	DefaultPoolSize     = 4
	DefaultPollInterval = 2 * time.Second

	// DefaultJobTimeout bounds one job execution end to end. Builds,
	// propagation waits and health polling all run inside it.
	DefaultJobTimeout = 45 * time.Minute
)

// Config holds worker pool settings.
type Config struct {
	Size         int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = DefaultPoolSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	return c
}

// =============================================================================
// Pool
// =============================================================================

// Pool runs a fixed number of workers, each pulling jobs from the queue and
// driving them through the orchestrator. Jobs for different targets execute
// fully in parallel; the per-target deployment lock serializes the rest.
type Pool struct {
	queue        *queue.Queue
	orchestrator *Orchestrator
	config       Config
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(q *queue.Queue, o *Orchestrator, config Config, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:        q,
		orchestrator: o,
		config:       config.withDefaults(),
		logger:       logger.With("component", "worker-pool"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.config.Size; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.New().String()[:8])
		p.wg.Add(1)
		go p.run(workerID)
	}
	p.logger.Info("worker pool started", "size", p.config.Size)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(workerID string) {
	defer p.wg.Done()

	log := p.logger.With("worker", workerID)
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.drain(workerID, log)
		}
	}
}

// drain processes queued jobs until the queue is empty or the pool stops.
func (p *Pool) drain(workerID string, log *slog.Logger) {
	for {
		if p.ctx.Err() != nil {
			return
		}

		job, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) && p.ctx.Err() == nil {
				log.Error("dequeue failed", "error", err)
			}
			return
		}

		p.process(workerID, job, log)
	}
}

func (p *Pool) process(workerID string, job *domain.Job, log *slog.Logger) {
	jobCtx, cancel := context.WithTimeout(p.ctx, p.config.JobTimeout)
	defer cancel()

	log.Info("job claimed", "job", job.ID, "type", job.Type)
	err := p.orchestrator.Execute(jobCtx, workerID, job)

	// Bookkeeping survives pool shutdown; a completed deployment must not
	// be recorded as stale because Stop raced the final update.
	bookCtx, bookCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bookCancel()

	switch {
	case err == nil:
		if err := p.queue.Complete(bookCtx, job); err != nil {
			log.Error("completing job", "job", job.ID, "error", err)
		}
	case errors.Is(err, errJobCancelled):
		log.Info("job cancelled mid-flight", "job", job.ID)
	default:
		log.Warn("job failed", "job", job.ID, "error", err)
		if err := p.queue.Fail(bookCtx, job, err); err != nil {
			log.Error("recording job failure", "job", job.ID, "error", err)
		}
	}
}
