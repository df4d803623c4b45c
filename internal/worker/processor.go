package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// processStage runs one pipeline stage for one job with timeout and
// heartbeat. The returned error drives the NACK decision; a nil return
// ACKs the message.
func (w *Worker) processStage(ctx context.Context, msg *domain.StageMessage) error {
	w.logger.Info("Processing stage",
		slog.String("job_id", msg.JobID),
		slog.String("stage", string(msg.Stage)),
		slog.String("worker_id", w.workerID),
	)

	stageCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(stageCtx, msg.JobID, heartbeatDone)
	defer close(heartbeatDone)

	var err error
	switch msg.Stage {
	case domain.StageAnalyze:
		err = w.stages.RunAnalyze(stageCtx, msg.JobID)
	case domain.StageScript:
		err = w.stages.RunScript(stageCtx, msg.JobID)
	case domain.StageTTS:
		err = w.stages.RunTTS(stageCtx, msg.JobID)
	default:
		err = fmt.Errorf("unknown pipeline stage: %q", msg.Stage)
	}

	if err == nil {
		return nil
	}

	// The claim missed: the job was cancelled, rescued, or already worked
	// by another consumer. The message is consumed without failing the job.
	if errors.Is(err, domain.ErrStaleTransition) {
		w.logger.Warn("Stage skipped - job no longer in entry status",
			slog.String("job_id", msg.JobID),
			slog.String("stage", string(msg.Stage)),
		)
		return nil
	}

	// Transient failures are redelivered; the job row is left untouched so
	// the retry can claim it again.
	var retryable *domain.RetryableError
	if errors.As(err, &retryable) {
		return err
	}

	// Anything else is final for this job. Record the failure with a guard
	// that never overwrites completed or cancelled. The stage context may
	// already be dead, so the write uses the worker's context.
	if markErr := w.store.MarkFailed(ctx, msg.JobID, err.Error()); markErr != nil {
		w.logger.Error("Failed to mark job failed",
			slog.String("job_id", msg.JobID),
			slog.String("error", markErr.Error()),
		)
	}

	return err
}

// sendJobHeartbeat periodically refreshes the job's heartbeat timestamp so
// the rescue sweep can tell a slow stage from a dead worker.
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	w.logger.Debug("Job heartbeat started",
		slog.String("job_id", jobID),
	)

	for {
		select {
		case <-done:
			w.logger.Debug("Job heartbeat stopped",
				slog.String("job_id", jobID),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Job heartbeat stopped - context canceled",
				slog.String("job_id", jobID),
			)
			return

		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
