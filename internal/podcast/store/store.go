package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/podforge/podforge-be/internal/podcast/domain"
	"github.com/podforge/podforge-be/shared/postgresql"
)

const jobColumns = `
	job_id, user_id, status, filename, source_object_key,
	extracted_text, needs_chunking, text_chunks, concepts,
	generated_script, script_chunks, podcast_url, duration_seconds,
	error_message, last_heartbeat_at, created_at, updated_at`

// Store owns all reads and writes of the podcast_jobs table. Pipeline
// transitions are status-guarded: the WHERE clause names the expected
// current status, and zero affected rows surfaces as ErrStaleTransition so
// a late writer never overwrites a cancel, a rescue, or a newer stage.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewStore(pg *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// Create inserts a freshly intaken job in pending_analysis.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO podcast_jobs (
			job_id, user_id, status, filename, source_object_key,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`

	_, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.UserID,
		domain.StatusPendingAnalysis,
		job.Filename,
		job.SourceObjectKey,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// Get fetches a job without ownership checks. Worker-side use only.
func (s *Store) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobColumns + ` FROM podcast_jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// GetForUser fetches a job and enforces ownership. A job owned by someone
// else comes back as ErrNotOwner, never as the row itself.
func (s *Store) GetForUser(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	return job, nil
}

// ClaimStage moves a job from a stage's entry status to its in-progress
// status and returns the claimed row. ErrStaleTransition means the job is
// no longer claimable: cancelled, already claimed, or rescued meanwhile.
func (s *Store) ClaimStage(ctx context.Context, jobID string, from, to domain.Status) (*domain.Job, error) {
	query := `
		UPDATE podcast_jobs
		SET status = $1,
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, to, jobID, from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Stage claim missed - job not in entry status",
				slog.String("job_id", jobID),
				slog.String("expected_status", string(from)),
			)
			return nil, domain.ErrStaleTransition
		}
		return nil, fmt.Errorf("failed to claim stage: %w", err)
	}

	return &job, nil
}

// SaveAnalysis persists the analyze stage's artifacts and moves the job to
// text_analyzed. Chunks and concepts arrive as already-encoded JSON.
func (s *Store) SaveAnalysis(ctx context.Context, jobID, extractedText string, needsChunking bool, textChunks, concepts []byte) error {
	query := `
		UPDATE podcast_jobs
		SET status = $1,
		    extracted_text = $2,
		    needs_chunking = $3,
		    text_chunks = $4,
		    concepts = $5,
		    updated_at = NOW()
		WHERE job_id = $6
		  AND status = $7
	`

	return s.guardedExec(ctx, query,
		domain.StatusTextAnalyzed, extractedText, needsChunking,
		textChunks, concepts, jobID, domain.StatusAnalyzingText)
}

// MarkSendingToOpenAI records that the script stage is about to issue its
// model call, so a stall here is distinguishable from one before the call.
func (s *Store) MarkSendingToOpenAI(ctx context.Context, jobID string) error {
	query := `
		UPDATE podcast_jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	return s.guardedExec(ctx, query,
		domain.StatusSendingToOpenAI, jobID, domain.StatusGeneratingScript)
}

// SaveScript persists the generated script and moves to script_generated.
func (s *Store) SaveScript(ctx context.Context, jobID, script string, scriptChunks []byte) error {
	query := `
		UPDATE podcast_jobs
		SET status = $1,
		    generated_script = $2,
		    script_chunks = $3,
		    updated_at = NOW()
		WHERE job_id = $4
		  AND status = $5
	`

	return s.guardedExec(ctx, query,
		domain.StatusScriptGenerated, script, scriptChunks,
		jobID, domain.StatusSendingToOpenAI)
}

// MarkUploading moves a job from generating_tts to uploading.
func (s *Store) MarkUploading(ctx context.Context, jobID string) error {
	query := `
		UPDATE podcast_jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	return s.guardedExec(ctx, query,
		domain.StatusUploading, jobID, domain.StatusGeneratingTTS)
}

// Complete records the final audio location and measured duration. This is
// the only write path allowed to set podcast_url.
func (s *Store) Complete(ctx context.Context, jobID, podcastURL string, durationSeconds float64) error {
	query := `
		UPDATE podcast_jobs
		SET status = $1,
		    podcast_url = $2,
		    duration_seconds = $3,
		    updated_at = NOW()
		WHERE job_id = $4
		  AND status = $5
	`

	return s.guardedExec(ctx, query,
		domain.StatusCompleted, podcastURL, durationSeconds,
		jobID, domain.StatusUploading)
}

// MarkFailed records a failure from any non-terminal status. Completed and
// cancelled rows are left untouched.
func (s *Store) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE podcast_jobs
		SET status = $1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status NOT IN ($4, $5)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StatusFailed, errorMessage, jobID,
		domain.StatusCompleted, domain.StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		s.logger.Warn("Skipped failing job already in terminal status",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// Cancel moves a job to cancelled. Idempotent: cancelling an already
// cancelled job succeeds without touching the row. A completed job cannot
// be cancelled and returns ErrJobTerminal.
func (s *Store) Cancel(ctx context.Context, jobID, userID string) error {
	job, err := s.GetForUser(ctx, jobID, userID)
	if err != nil {
		return err
	}

	switch job.Status {
	case domain.StatusCancelled:
		return nil
	case domain.StatusCompleted:
		return domain.ErrJobTerminal
	}

	query := `
		UPDATE podcast_jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2
		  AND status NOT IN ($3, $4)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StatusCancelled, jobID,
		domain.StatusCompleted, domain.StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Raced with a concurrent cancel; both callers see success.
		current, getErr := s.Get(ctx, jobID)
		if getErr == nil && current.Status == domain.StatusCompleted {
			return domain.ErrJobTerminal
		}
	}

	return nil
}

// Heartbeat refreshes last_heartbeat_at while a stage is working a job, so
// the rescue sweep can tell a slow stage from a dead one.
func (s *Store) Heartbeat(ctx context.Context, jobID string) error {
	query := `
		UPDATE podcast_jobs
		SET last_heartbeat_at = NOW(), updated_at = NOW()
		WHERE job_id = $1
		  AND status NOT IN ($2, $3, $4)
	`

	_, err := s.db.ExecContext(ctx, query, jobID,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	return nil
}

// guardedExec runs a status-guarded UPDATE and maps "no rows matched" to
// ErrStaleTransition.
func (s *Store) guardedExec(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute transition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrStaleTransition
	}

	return nil
}

// JobFilter narrows the List query. UserID is mandatory; listing is always
// scoped to the caller.
type JobFilter struct {
	UserID   string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position for cursor pagination.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// List returns up to PageSize+1 jobs for the filter, newest first. The
// extra row lets the caller detect another page.
func (s *Store) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM podcast_jobs WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// FindStalled returns IDs of jobs stuck in an early pre-processing status
// past the staleness threshold. A live heartbeat keeps a job out of the
// result even when updated_at is old. An optional jobID confines the scan.
func (s *Store) FindStalled(ctx context.Context, olderThan time.Duration, jobID string) ([]string, error) {
	query := `
		SELECT job_id
		FROM podcast_jobs
		WHERE status IN ($1, $2)
		  AND updated_at < NOW() - $3::interval
		  AND (last_heartbeat_at IS NULL OR last_heartbeat_at < NOW() - $3::interval)
	`
	args := []interface{}{
		domain.StatusPendingAnalysis,
		domain.StatusAnalyzingText,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())),
	}

	if jobID != "" {
		query += " AND job_id = $4"
		args = append(args, jobID)
	}

	query += " ORDER BY updated_at ASC"

	var jobIDs []string
	if err := s.db.SelectContext(ctx, &jobIDs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find stalled jobs: %w", err)
	}

	return jobIDs, nil
}

// ResetForRescue puts a stalled job back at the pipeline entry so the
// analyze stage can be republished. Guarded on the stalled statuses, so a
// job that moved on since the scan is left alone.
func (s *Store) ResetForRescue(ctx context.Context, jobID string) error {
	query := `
		UPDATE podcast_jobs
		SET status = $1,
		    last_heartbeat_at = NULL,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status IN ($3, $4)
	`

	return s.guardedExec(ctx, query,
		domain.StatusPendingAnalysis, jobID,
		domain.StatusPendingAnalysis, domain.StatusAnalyzingText)
}
