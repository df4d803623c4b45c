// Package rescue requeues jobs stuck in an early pre-processing status.
// With queue-backed triggers a job normally cannot stall, but a message
// lost between the state write and the publish still leaves a stranded
// row; the sweep is the corrective for exactly that window.
package rescue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// DefaultStaleness is how long a job must sit untouched in a stalled
// status before the sweep picks it up.
const DefaultStaleness = 5 * time.Minute

// Store is the slice of the job store the sweeper needs.
type Store interface {
	FindStalled(ctx context.Context, olderThan time.Duration, jobID string) ([]string, error)
	ResetForRescue(ctx context.Context, jobID string) error
}

// Publisher re-triggers the pipeline entry stage for a rescued job.
type Publisher interface {
	PublishStage(ctx context.Context, stage domain.Stage, jobID string) error
}

// Result reports the outcome of one job's rescue attempt.
type Result struct {
	JobID   string `json:"job_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Sweeper finds and requeues stalled jobs. Safe to run repeatedly and from
// both the admin endpoint and the worker's timer: every reset is guarded
// on the stalled statuses, so a job that moved on is left alone.
type Sweeper struct {
	store     Store
	publisher Publisher
	staleness time.Duration
	logger    *slog.Logger
}

func NewSweeper(store Store, publisher Publisher, staleness time.Duration, logger *slog.Logger) *Sweeper {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Sweeper{
		store:     store,
		publisher: publisher,
		staleness: staleness,
		logger:    logger,
	}
}

// Run sweeps all stalled jobs, or just one when jobID is non-empty.
func (s *Sweeper) Run(ctx context.Context, jobID string) ([]Result, error) {
	stalled, err := s.store.FindStalled(ctx, s.staleness, jobID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(stalled))
	for _, id := range stalled {
		results = append(results, s.rescueOne(ctx, id))
	}

	if len(results) > 0 {
		s.logger.Info("Rescue sweep finished",
			slog.Int("stalled", len(stalled)),
		)
	}

	return results, nil
}

func (s *Sweeper) rescueOne(ctx context.Context, jobID string) Result {
	if err := s.store.ResetForRescue(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			// Moved on between scan and reset; nothing to rescue.
			return Result{JobID: jobID, Success: true}
		}
		s.logger.Error("Failed to reset stalled job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return Result{JobID: jobID, Success: false, Error: err.Error()}
	}

	if err := s.publisher.PublishStage(ctx, domain.StageAnalyze, jobID); err != nil {
		s.logger.Error("Failed to republish rescued job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return Result{JobID: jobID, Success: false, Error: err.Error()}
	}

	s.logger.Info("Rescued stalled job", slog.String("job_id", jobID))
	return Result{JobID: jobID, Success: true}
}
