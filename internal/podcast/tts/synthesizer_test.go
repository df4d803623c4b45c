package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// makeWAV builds a minimal 16-bit mono PCM WAV of roughly the given
// duration (8kHz sample rate, 16000 bytes per second).
func makeWAV(t *testing.T, seconds float64) []byte {
	t.Helper()

	const sampleRate = 8000
	const byteRate = sampleRate * 2
	dataSize := int(seconds * byteRate)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bit depth
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	return buf
}

type fakeSpeech struct {
	perChunkSeconds float64
	calls           int
	failAfter       int // fail on call n (1-based), 0 disables
	wav             func(t *testing.T, seconds float64) []byte
	t               *testing.T
}

func (f *fakeSpeech) Synthesize(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	if f.failAfter > 0 && f.calls >= f.failAfter {
		return nil, errors.New("synthesis backend down")
	}
	return makeWAV(f.t, f.perChunkSeconds), nil
}

func TestMeasureDuration(t *testing.T) {
	duration, err := MeasureDuration(makeWAV(t, 2.0))

	require.NoError(t, err)
	assert.InDelta(t, 2.0, duration.Seconds(), 0.05)
}

func TestMeasureDurationRejectsGarbage(t *testing.T) {
	_, err := MeasureDuration([]byte("definitely not audio"))
	require.Error(t, err)
}

func TestSynthesizerProcessesAllChunksUnderBudget(t *testing.T) {
	speech := &fakeSpeech{perChunkSeconds: 1, t: t}
	s := NewSynthesizer(speech, 20, DurationBudget, slog.New(slog.DiscardHandler))

	out, err := s.Run(context.Background(), []string{"One two. Three four. Five six."})

	require.NoError(t, err)
	assert.False(t, out.Truncated)
	assert.Equal(t, speech.calls, len(out.Segments))
	assert.InDelta(t, float64(len(out.Segments)), out.TotalDuration.Seconds(), 0.1)
}

func TestSynthesizerStopsAtDurationBudget(t *testing.T) {
	// 10s per chunk against a 25s budget: chunks 1 and 2 fit, chunk 3
	// would overshoot and is dropped along with everything after it.
	speech := &fakeSpeech{perChunkSeconds: 10, t: t}
	s := NewSynthesizer(speech, 12, 25*time.Second, slog.New(slog.DiscardHandler))

	script := strings.Repeat("Ten words. ", 8)
	out, err := s.Run(context.Background(), []string{script})

	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.Len(t, out.Segments, 2)
	assert.LessOrEqual(t, out.TotalDuration.Seconds(), 25.0+0.1)
}

func TestSynthesizerKeepsFirstChunkEvenOverBudget(t *testing.T) {
	speech := &fakeSpeech{perChunkSeconds: 40, t: t}
	s := NewSynthesizer(speech, 12, 30*time.Second, slog.New(slog.DiscardHandler))

	out, err := s.Run(context.Background(), []string{"Long chunk. Another one."})

	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	assert.True(t, out.Truncated)
}

func TestSynthesizerFailsWhenBackendFails(t *testing.T) {
	speech := &fakeSpeech{perChunkSeconds: 1, failAfter: 1, t: t}
	s := NewSynthesizer(speech, 4800, DurationBudget, slog.New(slog.DiscardHandler))

	_, err := s.Run(context.Background(), []string{"Some script."})

	require.Error(t, err)
	var synthErr *domain.SynthesisError
	assert.ErrorAs(t, err, &synthErr)
}

func TestSynthesizerRejectsEmptyScript(t *testing.T) {
	s := NewSynthesizer(&fakeSpeech{t: t}, 4800, DurationBudget, slog.New(slog.DiscardHandler))

	_, err := s.Run(context.Background(), []string{"   \n  "})

	require.Error(t, err)
	var synthErr *domain.SynthesisError
	assert.ErrorAs(t, err, &synthErr)
}

func TestSelectScriptsPrefersChunkedScripts(t *testing.T) {
	job := &domain.Job{
		GeneratedScript: "the full script",
		ScriptChunks:    []byte(`["chunk a","chunk b"]`),
	}

	scripts, err := SelectScripts(job)

	require.NoError(t, err)
	assert.Equal(t, []string{"chunk a", "chunk b"}, scripts)
}

func TestSelectScriptsFallsBackToFullScript(t *testing.T) {
	job := &domain.Job{GeneratedScript: "the full script"}

	scripts, err := SelectScripts(job)

	require.NoError(t, err)
	assert.Equal(t, []string{"the full script"}, scripts)
}

func TestSelectScriptsErrorsWithoutAnyScript(t *testing.T) {
	_, err := SelectScripts(&domain.Job{})
	require.Error(t, err)
}
