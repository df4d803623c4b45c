package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/podforge/podforge-be/internal/api/dto"
	"github.com/podforge/podforge-be/internal/podcast/domain"
	"github.com/podforge/podforge-be/internal/podcast/store"
)

// ContextUserIDKey is where the auth middleware stores the caller's ID.
const ContextUserIDKey = "user_id"

var pdfMagic = []byte("%PDF")

// CreatePodcast handles POST /api/v1/podcasts
// Accepts a multipart PDF upload, stores it, creates the job, and
// publishes the analyze stage.
func (h *PodcastHandler) CreatePodcast(c *gin.Context) {
	userID := c.GetString(ContextUserIDKey)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is required",
		})
		return
	}

	if fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file exceeds the maximum upload size",
		})
		return
	}

	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "only PDF files are accepted",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read uploaded file",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Error("Failed to read uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read uploaded file",
		})
		return
	}

	if int64(len(data)) > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file exceeds the maximum upload size",
		})
		return
	}

	if !bytes.HasPrefix(data, pdfMagic) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is not a valid PDF",
		})
		return
	}

	jobID := uuid.New().String()

	objectKey, err := h.uploader.PutSource(c.Request.Context(), jobID, fileHeader.Filename, data)
	if err != nil {
		h.logger.Error("Failed to store source PDF",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store uploaded file",
		})
		return
	}

	job := &domain.Job{
		JobID:           jobID,
		UserID:          userID,
		Status:          domain.StatusPendingAnalysis,
		Filename:        fileHeader.Filename,
		SourceObjectKey: objectKey,
	}

	if err := h.store.Create(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to create job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	// The job row exists but nothing will pick it up without the stage
	// message, so a publish failure fails the job immediately.
	if err := h.publisher.PublishStage(c.Request.Context(), domain.StageAnalyze, jobID); err != nil {
		h.logger.Error("Failed to publish analyze stage",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		if markErr := h.store.MarkFailed(c.Request.Context(), jobID, err.Error()); markErr != nil {
			h.logger.Error("Failed to mark job failed after publish failure",
				slog.String("job_id", jobID),
				slog.String("error", markErr.Error()),
			)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	h.logger.Info("Podcast job created",
		slog.String("job_id", jobID),
		slog.String("user_id", userID),
		slog.String("filename", fileHeader.Filename),
	)

	c.JSON(http.StatusCreated, dto.CreatePodcastResponse{
		JobID:  jobID,
		Status: string(domain.StatusPendingAnalysis),
	})
}

// GetPodcast handles GET /api/v1/podcasts/:job_id
// Returns the job's current status; terminal responses may be served from
// the cache.
func (h *PodcastHandler) GetPodcast(c *gin.Context) {
	jobID := c.Param("job_id")
	userID := c.GetString(ContextUserIDKey)

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	cacheKey := statusCacheKey(userID, jobID)
	if h.cache != nil {
		if cached, ok, err := h.cache.Get(c.Request.Context(), cacheKey); err == nil && ok {
			var resp dto.PodcastStatusResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &resp); unmarshalErr == nil {
				c.JSON(http.StatusOK, resp)
				return
			}
		}
	}

	job, err := h.store.GetForUser(c.Request.Context(), jobID, userID)
	if err != nil {
		h.respondJobError(c, jobID, err)
		return
	}

	resp := jobToStatusResponse(job)

	// Terminal statuses never change again, so they are safe to cache.
	if h.cache != nil && job.Status.IsTerminal() {
		if encoded, marshalErr := json.Marshal(resp); marshalErr == nil {
			if cacheErr := h.cache.Set(c.Request.Context(), cacheKey, string(encoded), h.statusCacheTTL); cacheErr != nil {
				h.logger.Warn("Failed to cache status response",
					slog.String("job_id", jobID),
					slog.String("error", cacheErr.Error()),
				)
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ListPodcasts handles GET /api/v1/podcasts
// Lists the caller's jobs with cursor pagination and optional status filter.
func (h *PodcastHandler) ListPodcasts(c *gin.Context) {
	userID := c.GetString(ContextUserIDKey)

	var req dto.ListPodcastsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	if req.Status != "" && !domain.Status(req.Status).IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status filter",
		})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := store.JobFilter{
		UserID:   userID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	podcasts := make([]dto.PodcastStatusResponse, len(jobs))
	for i := range jobs {
		podcasts[i] = jobToStatusResponse(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&store.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListPodcastsResponse{
		Podcasts:   podcasts,
		NextCursor: nextCursor,
	})
}

// CancelPodcast handles POST /api/v1/podcasts/:job_id/cancel
// Cancels a job from any non-terminal state. Already-cancelled jobs
// succeed again; completed jobs cannot be cancelled.
func (h *PodcastHandler) CancelPodcast(c *gin.Context) {
	jobID := c.Param("job_id")
	userID := c.GetString(ContextUserIDKey)

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	if err := h.store.Cancel(c.Request.Context(), jobID, userID); err != nil {
		if errors.Is(err, domain.ErrJobTerminal) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "completed jobs cannot be cancelled",
			})
			return
		}
		h.respondJobError(c, jobID, err)
		return
	}

	h.logger.Info("Podcast job cancelled",
		slog.String("job_id", jobID),
		slog.String("user_id", userID),
	)

	c.JSON(http.StatusOK, dto.CancelPodcastResponse{
		JobID:  jobID,
		Status: string(domain.StatusCancelled),
	})
}

// RescueSweep handles POST /api/v1/admin/rescue
// Requeues jobs stuck in early pre-processing. An optional job_id query
// parameter confines the sweep to one job.
func (h *PodcastHandler) RescueSweep(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID != "" {
		if _, err := uuid.Parse(jobID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "job_id must be a valid UUID",
			})
			return
		}
	}

	results, err := h.sweeper.Run(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Rescue sweep failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Rescue sweep failed",
		})
		return
	}

	dtoResults := make([]dto.RescueResult, len(results))
	for i, r := range results {
		dtoResults[i] = dto.RescueResult{
			JobID:   r.JobID,
			Success: r.Success,
			Error:   r.Error,
		}
	}

	c.JSON(http.StatusOK, dto.RescueResponse{
		Message: "rescue sweep completed",
		Results: dtoResults,
	})
}

// respondJobError maps store errors onto HTTP statuses.
func (h *PodcastHandler) respondJobError(c *gin.Context, jobID string, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
	case errors.Is(err, domain.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "job belongs to another user",
		})
	default:
		h.logger.Error("Job lookup failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
	}
}

func jobToStatusResponse(job *domain.Job) dto.PodcastStatusResponse {
	resp := dto.PodcastStatusResponse{
		JobID:     job.JobID,
		Status:    string(job.Status),
		Filename:  job.Filename,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}

	if job.Status == domain.StatusCompleted {
		resp.PodcastURL = job.PodcastURL
		duration := job.DurationSeconds
		resp.DurationSeconds = &duration
	}

	if job.Status == domain.StatusFailed {
		resp.Error = job.ErrorMessage
	}

	return resp
}

func statusCacheKey(userID, jobID string) string {
	return "podcast_status:" + userID + ":" + jobID
}
