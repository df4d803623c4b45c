package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/podforge/podforge-be/internal/podcast/domain"
	"github.com/podforge/podforge-be/internal/podcast/rescue"
	"github.com/podforge/podforge-be/shared/rabbitmq"
)

// JobMarker is the slice of the job store the worker shell needs: failure
// records and liveness heartbeats.
type JobMarker interface {
	MarkFailed(ctx context.Context, jobID, errorMessage string) error
	Heartbeat(ctx context.Context, jobID string) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	RabbitClient      *rabbitmq.Client
	Store             JobMarker
	Stages            *Stages
	Sweeper           *rescue.Sweeper
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	QueueName         string
}

// Worker consumes stage messages and drives the podcast pipeline
type Worker struct {
	logger            *slog.Logger
	rabbitClient      *rabbitmq.Client
	store             JobMarker
	stages            *Stages
	sweeper           *rescue.Sweeper
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	sweepInterval     time.Duration
	queueName         string
	workerID          string
	jobsChan          chan *domain.StageMessage
	wg                sync.WaitGroup
	stopChan          chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return &Worker{
		logger:            cfg.Logger,
		rabbitClient:      cfg.RabbitClient,
		store:             cfg.Store,
		stages:            cfg.Stages,
		sweeper:           cfg.Sweeper,
		concurrency:       cfg.Concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
		sweepInterval:     cfg.SweepInterval,
		queueName:         cfg.QueueName,
		workerID:          fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		jobsChan:          make(chan *domain.StageMessage, cfg.Concurrency),
		stopChan:          make(chan struct{}),
	}
}

// Start begins consuming and processing stage messages. Blocks until the
// context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	go w.startMessageDispatcher(ctx, deliveries)

	if w.sweeper != nil && w.sweepInterval > 0 {
		go w.startRescueTimer(ctx)
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// startRescueTimer periodically requeues jobs stuck before their first
// stage claim. The same sweep backs the admin rescue endpoint.
func (w *Worker) startRescueTimer(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	w.logger.Info("Rescue timer started",
		slog.Duration("interval", w.sweepInterval),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Rescue timer stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Rescue timer stopped")
			return

		case <-ticker.C:
			if _, err := w.sweeper.Run(ctx, ""); err != nil {
				w.logger.Error("Scheduled rescue sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
