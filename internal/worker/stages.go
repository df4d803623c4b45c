package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/podforge/podforge-be/internal/podcast/assemble"
	"github.com/podforge/podforge-be/internal/podcast/chunker"
	"github.com/podforge/podforge-be/internal/podcast/domain"
	"github.com/podforge/podforge-be/internal/podcast/extract"
	"github.com/podforge/podforge-be/internal/podcast/tts"
)

// StageStore is the slice of the job store the stage executors need. Every
// transition is status-guarded; ErrStaleTransition from any call means the
// job moved on (cancelled, rescued, or claimed elsewhere) and the stage
// must stop without writing anything further.
type StageStore interface {
	ClaimStage(ctx context.Context, jobID string, from, to domain.Status) (*domain.Job, error)
	SaveAnalysis(ctx context.Context, jobID, extractedText string, needsChunking bool, textChunks, concepts []byte) error
	MarkSendingToOpenAI(ctx context.Context, jobID string) error
	SaveScript(ctx context.Context, jobID, script string, scriptChunks []byte) error
	MarkUploading(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID, podcastURL string, durationSeconds float64) error
}

// BlobStore reads source documents and writes finished audio.
type BlobStore interface {
	GetSource(ctx context.Context, key string) ([]byte, error)
	PutPodcast(ctx context.Context, jobID, sourceFilename string, data []byte) (string, error)
}

// TextExtractor parses a source document into raw text.
type TextExtractor interface {
	Text(data []byte) (*extract.Result, error)
}

// ConceptExtractor produces concept/explanation pairs from text chunks.
type ConceptExtractor interface {
	Extract(ctx context.Context, chunks []string) ([]domain.Concept, error)
}

// ScriptGenerator turns concepts plus source text into a podcast script.
type ScriptGenerator interface {
	Generate(ctx context.Context, concepts []domain.Concept, sourceText string) (string, error)
}

// SpeechSynthesizer renders scripts to ordered audio segments.
type SpeechSynthesizer interface {
	Run(ctx context.Context, scripts []string) (*tts.Output, error)
}

// StagePublisher enqueues the next pipeline stage.
type StagePublisher interface {
	PublishStage(ctx context.Context, stage domain.Stage, jobID string) error
}

// Stages holds the executors for the three pipeline stages. Each executor
// claims its entry transition, does its work, persists artifacts, and
// publishes the next stage's message.
type Stages struct {
	store     StageStore
	blobs     BlobStore
	extractor TextExtractor
	concepts  ConceptExtractor
	scripts   ScriptGenerator
	synth     SpeechSynthesizer
	publisher StagePublisher
	logger    *slog.Logger
}

func NewStages(
	store StageStore,
	blobs BlobStore,
	extractor TextExtractor,
	concepts ConceptExtractor,
	scripts ScriptGenerator,
	synth SpeechSynthesizer,
	publisher StagePublisher,
	logger *slog.Logger,
) *Stages {
	return &Stages{
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		concepts:  concepts,
		scripts:   scripts,
		synth:     synth,
		publisher: publisher,
		logger:    logger,
	}
}

// RunAnalyze downloads the source PDF, extracts and chunks its text, and
// extracts concepts. pending_analysis -> analyzing_text -> text_analyzed.
func (s *Stages) RunAnalyze(ctx context.Context, jobID string) error {
	job, err := s.store.ClaimStage(ctx, jobID, domain.StatusPendingAnalysis, domain.StatusAnalyzingText)
	if err != nil {
		return err
	}

	data, err := s.blobs.GetSource(ctx, job.SourceObjectKey)
	if err != nil {
		// Blob fetch failures are transient; let the broker redeliver.
		return domain.NewRetryableError(fmt.Errorf("failed to download source document: %w", err))
	}

	result, err := s.extractor.Text(data)
	if err != nil {
		return err
	}

	// Artifact columns are jsonb NOT NULL, so an absent list is stored as
	// an empty array, never as a nil parameter.
	chunks := []string{result.ExtractedText}
	textChunksJSON := []byte("[]")
	if result.NeedsChunking {
		chunks = chunker.Split(result.ExtractedText, chunker.DefaultMaxChars)
		textChunksJSON, err = json.Marshal(chunks)
		if err != nil {
			return fmt.Errorf("failed to encode text chunks: %w", err)
		}
		s.logger.Info("Source text chunked",
			slog.String("job_id", jobID),
			slog.Int("chunks", len(chunks)),
			slog.Int("text_length", len(result.ExtractedText)),
		)
	}

	concepts, err := s.concepts.Extract(ctx, chunks)
	if err != nil {
		return err
	}

	conceptsJSON, err := json.Marshal(concepts)
	if err != nil {
		return fmt.Errorf("failed to encode concepts: %w", err)
	}

	if err := s.store.SaveAnalysis(ctx, jobID, result.ExtractedText, result.NeedsChunking, textChunksJSON, conceptsJSON); err != nil {
		return err
	}

	s.logger.Info("Analyze stage completed",
		slog.String("job_id", jobID),
		slog.Int("concepts", len(concepts)),
		slog.Bool("needs_chunking", result.NeedsChunking),
	)

	return s.publisher.PublishStage(ctx, domain.StageScript, jobID)
}

// RunScript generates the podcast script from the persisted analysis.
// text_analyzed -> generating_script_background -> sending_to_openai ->
// script_generated.
func (s *Stages) RunScript(ctx context.Context, jobID string) error {
	job, err := s.store.ClaimStage(ctx, jobID, domain.StatusTextAnalyzed, domain.StatusGeneratingScript)
	if err != nil {
		return err
	}

	concepts, err := job.DecodeConcepts()
	if err != nil {
		return fmt.Errorf("failed to decode stored concepts: %w", err)
	}

	// The model call is the slow part; record that it is in flight so a
	// stall here is distinguishable on the status poll.
	if err := s.store.MarkSendingToOpenAI(ctx, jobID); err != nil {
		return err
	}

	script, err := s.scripts.Generate(ctx, concepts, job.ExtractedText)
	if err != nil {
		return err
	}

	if err := s.store.SaveScript(ctx, jobID, script, []byte("[]")); err != nil {
		return err
	}

	s.logger.Info("Script stage completed",
		slog.String("job_id", jobID),
		slog.Int("script_length", len(script)),
	)

	return s.publisher.PublishStage(ctx, domain.StageTTS, jobID)
}

// RunTTS synthesizes the script, assembles the audio, and uploads the
// result. script_generated -> generating_tts -> uploading -> completed.
func (s *Stages) RunTTS(ctx context.Context, jobID string) error {
	job, err := s.store.ClaimStage(ctx, jobID, domain.StatusScriptGenerated, domain.StatusGeneratingTTS)
	if err != nil {
		return err
	}

	scripts, err := tts.SelectScripts(job)
	if err != nil {
		return err
	}

	output, err := s.synth.Run(ctx, scripts)
	if err != nil {
		return err
	}

	audio, err := assemble.Concat(output.Segments)
	if err != nil {
		return err
	}

	if err := s.store.MarkUploading(ctx, jobID); err != nil {
		return err
	}

	podcastURL, err := s.blobs.PutPodcast(ctx, jobID, job.Filename, audio)
	if err != nil {
		return err
	}

	if err := s.store.Complete(ctx, jobID, podcastURL, output.TotalDuration.Seconds()); err != nil {
		return err
	}

	s.logger.Info("TTS stage completed",
		slog.String("job_id", jobID),
		slog.String("podcast_url", podcastURL),
		slog.Float64("duration_seconds", output.TotalDuration.Seconds()),
		slog.Bool("truncated", output.Truncated),
	)

	return nil
}
