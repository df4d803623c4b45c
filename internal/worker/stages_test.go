package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podforge/podforge-be/internal/podcast/domain"
	"github.com/podforge/podforge-be/internal/podcast/extract"
	"github.com/podforge/podforge-be/internal/podcast/tts"
)

type fakeStageStore struct {
	job      *domain.Job
	claimErr error

	claims [][2]domain.Status
	calls  []string

	savedText       string
	savedChunking   bool
	savedTextChunks []byte
	savedConcepts   []byte

	savedScript       string
	savedScriptChunks []byte

	completedURL      string
	completedDuration float64
}

func (f *fakeStageStore) ClaimStage(_ context.Context, _ string, from, to domain.Status) (*domain.Job, error) {
	f.claims = append(f.claims, [2]domain.Status{from, to})
	f.calls = append(f.calls, "claim")
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return f.job, nil
}

func (f *fakeStageStore) SaveAnalysis(_ context.Context, _, extractedText string, needsChunking bool, textChunks, concepts []byte) error {
	f.calls = append(f.calls, "save_analysis")
	f.savedText = extractedText
	f.savedChunking = needsChunking
	f.savedTextChunks = textChunks
	f.savedConcepts = concepts
	return nil
}

func (f *fakeStageStore) MarkSendingToOpenAI(_ context.Context, _ string) error {
	f.calls = append(f.calls, "mark_sending")
	return nil
}

func (f *fakeStageStore) SaveScript(_ context.Context, _, script string, scriptChunks []byte) error {
	f.calls = append(f.calls, "save_script")
	f.savedScript = script
	f.savedScriptChunks = scriptChunks
	return nil
}

func (f *fakeStageStore) MarkUploading(_ context.Context, _ string) error {
	f.calls = append(f.calls, "mark_uploading")
	return nil
}

func (f *fakeStageStore) Complete(_ context.Context, _, podcastURL string, durationSeconds float64) error {
	f.calls = append(f.calls, "complete")
	f.completedURL = podcastURL
	f.completedDuration = durationSeconds
	return nil
}

type fakeBlobStore struct {
	source    []byte
	sourceErr error
	getKeys   []string

	putURL  string
	putErr  error
	putData []byte
}

func (f *fakeBlobStore) GetSource(_ context.Context, key string) ([]byte, error) {
	f.getKeys = append(f.getKeys, key)
	return f.source, f.sourceErr
}

func (f *fakeBlobStore) PutPodcast(_ context.Context, _, _ string, data []byte) (string, error) {
	f.putData = data
	return f.putURL, f.putErr
}

type fakeExtractor struct {
	result *extract.Result
	err    error
}

func (f *fakeExtractor) Text(_ []byte) (*extract.Result, error) {
	return f.result, f.err
}

type fakeConceptExtractor struct {
	concepts   []domain.Concept
	err        error
	gotChunks  []string
	callsCount int
}

func (f *fakeConceptExtractor) Extract(_ context.Context, chunks []string) ([]domain.Concept, error) {
	f.callsCount++
	f.gotChunks = chunks
	return f.concepts, f.err
}

type fakeScriptGenerator struct {
	script      string
	err         error
	gotConcepts []domain.Concept
	gotSource   string
}

func (f *fakeScriptGenerator) Generate(_ context.Context, concepts []domain.Concept, sourceText string) (string, error) {
	f.gotConcepts = concepts
	f.gotSource = sourceText
	return f.script, f.err
}

type fakeSynthesizer struct {
	output     *tts.Output
	err        error
	gotScripts []string
}

func (f *fakeSynthesizer) Run(_ context.Context, scripts []string) (*tts.Output, error) {
	f.gotScripts = scripts
	return f.output, f.err
}

type fakeStagePublisher struct {
	stages []domain.Stage
	jobIDs []string
	err    error
}

func (f *fakeStagePublisher) PublishStage(_ context.Context, stage domain.Stage, jobID string) error {
	f.stages = append(f.stages, stage)
	f.jobIDs = append(f.jobIDs, jobID)
	return f.err
}

type stageFixture struct {
	store     *fakeStageStore
	blobs     *fakeBlobStore
	extractor *fakeExtractor
	concepts  *fakeConceptExtractor
	scripts   *fakeScriptGenerator
	synth     *fakeSynthesizer
	publisher *fakeStagePublisher
	stages    *Stages
}

func newStageFixture() *stageFixture {
	f := &stageFixture{
		store:     &fakeStageStore{},
		blobs:     &fakeBlobStore{},
		extractor: &fakeExtractor{},
		concepts:  &fakeConceptExtractor{},
		scripts:   &fakeScriptGenerator{},
		synth:     &fakeSynthesizer{},
		publisher: &fakeStagePublisher{},
	}
	f.stages = NewStages(
		f.store,
		f.blobs,
		f.extractor,
		f.concepts,
		f.scripts,
		f.synth,
		f.publisher,
		slog.New(slog.DiscardHandler),
	)
	return f
}

// wavSegment builds a minimal RIFF/WAVE buffer around the given samples.
func wavSegment(samples []byte) []byte {
	buf := make([]byte, 44+len(samples))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(samples)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], 8000)
	binary.LittleEndian.PutUint32(buf[28:32], 16000)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(samples)))
	copy(buf[44:], samples)
	return buf
}

func TestRunAnalyzeShortDocument(t *testing.T) {
	f := newStageFixture()
	f.blobs.source = []byte("%PDF-1.4 fake")
	f.extractor.result = &extract.Result{ExtractedText: "short text", NeedsChunking: false}
	f.concepts.concepts = []domain.Concept{{Concept: "A", Explanation: "a thing"}}
	f.store.job = &domain.Job{JobID: "job-1", SourceObjectKey: "sources/job-1.pdf"}

	err := f.stages.RunAnalyze(context.Background(), "job-1")

	require.NoError(t, err)
	require.Len(t, f.store.claims, 1)
	assert.Equal(t, domain.StatusPendingAnalysis, f.store.claims[0][0])
	assert.Equal(t, domain.StatusAnalyzingText, f.store.claims[0][1])
	assert.Equal(t, []string{"sources/job-1.pdf"}, f.blobs.getKeys)

	// Short documents go to concept extraction as a single chunk; the
	// chunk column still gets valid JSON, an empty array, never nil. The
	// jsonb columns are NOT NULL and lib/pq binds a nil []byte as an
	// empty string, which Postgres rejects as json.
	assert.Equal(t, []string{"short text"}, f.concepts.gotChunks)
	assert.Equal(t, "short text", f.store.savedText)
	assert.False(t, f.store.savedChunking)
	assert.JSONEq(t, "[]", string(f.store.savedTextChunks))

	var saved []domain.Concept
	require.NoError(t, json.Unmarshal(f.store.savedConcepts, &saved))
	assert.Equal(t, f.concepts.concepts, saved)

	assert.Equal(t, []domain.Stage{domain.StageScript}, f.publisher.stages)
	assert.Equal(t, []string{"job-1"}, f.publisher.jobIDs)
}

func TestRunAnalyzeChunksLongDocument(t *testing.T) {
	f := newStageFixture()
	longText := strings.Repeat("paragraph one.\n\n", 2000) // well past the threshold
	longText = strings.TrimSuffix(longText, "\n\n")
	f.extractor.result = &extract.Result{ExtractedText: longText, NeedsChunking: true}
	f.concepts.concepts = []domain.Concept{{Concept: "A", Explanation: "a"}}
	f.store.job = &domain.Job{JobID: "job-1", SourceObjectKey: "sources/job-1.pdf"}

	err := f.stages.RunAnalyze(context.Background(), "job-1")

	require.NoError(t, err)
	assert.True(t, f.store.savedChunking)
	require.NotNil(t, f.store.savedTextChunks)

	var chunks []string
	require.NoError(t, json.Unmarshal(f.store.savedTextChunks, &chunks))
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, chunks, f.concepts.gotChunks)
}

func TestRunAnalyzeSourceDownloadIsRetryable(t *testing.T) {
	f := newStageFixture()
	f.store.job = &domain.Job{JobID: "job-1", SourceObjectKey: "sources/job-1.pdf"}
	f.blobs.sourceErr = errors.New("connection reset")

	err := f.stages.RunAnalyze(context.Background(), "job-1")

	var retryable *domain.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.Zero(t, f.concepts.callsCount)
	assert.Empty(t, f.publisher.stages)
}

func TestRunAnalyzeStaleClaim(t *testing.T) {
	f := newStageFixture()
	f.store.claimErr = domain.ErrStaleTransition

	err := f.stages.RunAnalyze(context.Background(), "job-1")

	require.ErrorIs(t, err, domain.ErrStaleTransition)
	assert.Empty(t, f.blobs.getKeys, "stale claim must stop before any work")
}

func TestRunAnalyzeExtractionFailureIsTerminal(t *testing.T) {
	f := newStageFixture()
	f.store.job = &domain.Job{JobID: "job-1", SourceObjectKey: "sources/job-1.pdf"}
	f.extractor.err = &domain.ExtractionError{Reason: "document contains no extractable text"}

	err := f.stages.RunAnalyze(context.Background(), "job-1")

	var extractionErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	var retryable *domain.RetryableError
	assert.False(t, errors.As(err, &retryable))
	assert.Empty(t, f.store.savedConcepts)
}

func TestRunScriptHappyPath(t *testing.T) {
	f := newStageFixture()
	conceptsJSON, err := json.Marshal([]domain.Concept{{Concept: "A", Explanation: "a"}})
	require.NoError(t, err)
	f.store.job = &domain.Job{
		JobID:         "job-1",
		ExtractedText: "source text",
		Concepts:      types.JSONText(conceptsJSON),
	}
	f.scripts.script = "Welcome to the show."

	err = f.stages.RunScript(context.Background(), "job-1")

	require.NoError(t, err)
	require.Len(t, f.store.claims, 1)
	assert.Equal(t, domain.StatusTextAnalyzed, f.store.claims[0][0])
	assert.Equal(t, domain.StatusGeneratingScript, f.store.claims[0][1])

	// The in-flight marker must land before the model call's result.
	assert.Equal(t, []string{"claim", "mark_sending", "save_script"}, f.store.calls)

	assert.Equal(t, "source text", f.scripts.gotSource)
	require.Len(t, f.scripts.gotConcepts, 1)
	assert.Equal(t, "A", f.scripts.gotConcepts[0].Concept)

	assert.Equal(t, "Welcome to the show.", f.store.savedScript)
	// No per-chunk scripts on this path; the column still needs valid JSON.
	assert.JSONEq(t, "[]", string(f.store.savedScriptChunks))
	assert.Equal(t, []domain.Stage{domain.StageTTS}, f.publisher.stages)
}

func TestRunScriptCorruptConcepts(t *testing.T) {
	f := newStageFixture()
	f.store.job = &domain.Job{JobID: "job-1", Concepts: types.JSONText(`{not json`)}

	err := f.stages.RunScript(context.Background(), "job-1")

	require.Error(t, err)
	assert.NotContains(t, f.store.calls, "mark_sending")
	assert.Empty(t, f.publisher.stages)
}

func TestRunScriptGenerationFailure(t *testing.T) {
	f := newStageFixture()
	f.store.job = &domain.Job{JobID: "job-1", ExtractedText: "text"}
	f.scripts.err = &domain.ModelResponseError{Err: errors.New("request timed out")}

	err := f.stages.RunScript(context.Background(), "job-1")

	var modelErr *domain.ModelResponseError
	require.ErrorAs(t, err, &modelErr)
	assert.NotContains(t, f.store.calls, "save_script")
	assert.Empty(t, f.publisher.stages)
}

func TestRunTTSHappyPath(t *testing.T) {
	f := newStageFixture()
	f.store.job = &domain.Job{
		JobID:           "job-1",
		Filename:        "lecture.pdf",
		GeneratedScript: "Welcome to the show.",
	}
	f.synth.output = &tts.Output{
		Segments:      [][]byte{wavSegment([]byte{1, 2, 3, 4}), wavSegment([]byte{5, 6})},
		TotalDuration: 90 * time.Second,
	}
	f.blobs.putURL = "https://cdn.example.com/podcasts/job-1.wav"

	err := f.stages.RunTTS(context.Background(), "job-1")

	require.NoError(t, err)
	require.Len(t, f.store.claims, 1)
	assert.Equal(t, domain.StatusScriptGenerated, f.store.claims[0][0])
	assert.Equal(t, domain.StatusGeneratingTTS, f.store.claims[0][1])

	assert.Equal(t, []string{"Welcome to the show."}, f.synth.gotScripts)
	assert.Equal(t, []string{"claim", "mark_uploading", "complete"}, f.store.calls)
	assert.NotEmpty(t, f.blobs.putData)
	assert.Equal(t, "https://cdn.example.com/podcasts/job-1.wav", f.store.completedURL)
	assert.InDelta(t, 90.0, f.store.completedDuration, 0.001)

	// The pipeline ends here; nothing further is enqueued.
	assert.Empty(t, f.publisher.stages)
}

func TestRunTTSPrefersScriptChunks(t *testing.T) {
	f := newStageFixture()
	chunksJSON, err := json.Marshal([]string{"part one", "part two"})
	require.NoError(t, err)
	f.store.job = &domain.Job{
		JobID:           "job-1",
		Filename:        "lecture.pdf",
		GeneratedScript: "full script",
		ScriptChunks:    types.JSONText(chunksJSON),
	}
	f.synth.output = &tts.Output{
		Segments:      [][]byte{wavSegment([]byte{1, 2})},
		TotalDuration: 10 * time.Second,
	}

	err = f.stages.RunTTS(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"part one", "part two"}, f.synth.gotScripts)
}

func TestRunTTSWithoutScript(t *testing.T) {
	f := newStageFixture()
	f.store.job = &domain.Job{JobID: "job-1"}

	err := f.stages.RunTTS(context.Background(), "job-1")

	var synthErr *domain.SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Nil(t, f.synth.gotScripts)
}

func TestRunTTSSynthesisFailure(t *testing.T) {
	f := newStageFixture()
	f.store.job = &domain.Job{JobID: "job-1", GeneratedScript: "script"}
	f.synth.err = &domain.SynthesisError{Reason: "sub-chunk 1 of 1: api error"}

	err := f.stages.RunTTS(context.Background(), "job-1")

	var synthErr *domain.SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.NotContains(t, f.store.calls, "mark_uploading")
	assert.NotContains(t, f.store.calls, "complete")
}
