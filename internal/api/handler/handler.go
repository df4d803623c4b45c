package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/podforge/podforge-be/internal/podcast/domain"
	"github.com/podforge/podforge-be/internal/podcast/rescue"
	"github.com/podforge/podforge-be/internal/podcast/store"
)

// JobStore is the slice of the job store the API needs.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetForUser(ctx context.Context, jobID, userID string) (*domain.Job, error)
	List(ctx context.Context, filter store.JobFilter) ([]domain.Job, error)
	Cancel(ctx context.Context, jobID, userID string) error
	MarkFailed(ctx context.Context, jobID, errorMessage string) error
}

// SourceUploader stores uploaded PDFs in blob storage.
type SourceUploader interface {
	PutSource(ctx context.Context, jobID, filename string, data []byte) (string, error)
}

// StagePublisher enqueues the first pipeline stage for a new job.
type StagePublisher interface {
	PublishStage(ctx context.Context, stage domain.Stage, jobID string) error
}

// StatusCache caches terminal status responses. A nil cache disables
// caching entirely.
type StatusCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Sweeper runs the stalled-job rescue sweep.
type Sweeper interface {
	Run(ctx context.Context, jobID string) ([]rescue.Result, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Store          JobStore
	Uploader       SourceUploader
	Publisher      StagePublisher
	Cache          StatusCache
	Sweeper        Sweeper
	StatusCacheTTL time.Duration
	MaxUploadBytes int64
}

// PodcastHandler handles podcast job HTTP requests
type PodcastHandler struct {
	logger         *slog.Logger
	store          JobStore
	uploader       SourceUploader
	publisher      StagePublisher
	cache          StatusCache
	sweeper        Sweeper
	statusCacheTTL time.Duration
	maxUploadBytes int64
}

// DefaultMaxUploadBytes caps the accepted PDF size at 25 MiB.
const DefaultMaxUploadBytes = 25 << 20

// NewPodcastHandler creates a new PodcastHandler instance
func NewPodcastHandler(deps *Dependencies) *PodcastHandler {
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	return &PodcastHandler{
		logger:         deps.Logger,
		store:          deps.Store,
		uploader:       deps.Uploader,
		publisher:      deps.Publisher,
		cache:          deps.Cache,
		sweeper:        deps.Sweeper,
		statusCacheTTL: deps.StatusCacheTTL,
		maxUploadBytes: maxUpload,
	}
}
