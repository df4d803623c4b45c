package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-audio/wav"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// DurationBudget is the hard ceiling on total synthesized audio. Sub-chunks
// past the budget are dropped, not an error.
const DurationBudget = 930 * time.Second

// Output is the synthesizer's result: ordered audio segments and the
// accumulated playback duration.
type Output struct {
	Segments      [][]byte
	TotalDuration time.Duration
	Truncated     bool
}

// Synthesizer renders a script to audio segment by segment, strictly in
// order, stopping once the duration budget is exhausted.
type Synthesizer struct {
	speech        Speech
	maxChunkChars int
	budget        time.Duration
	logger        *slog.Logger
}

func NewSynthesizer(speech Speech, maxChunkChars int, budget time.Duration, logger *slog.Logger) *Synthesizer {
	if maxChunkChars <= 0 {
		maxChunkChars = MaxChunkChars
	}
	if budget <= 0 {
		budget = DurationBudget
	}
	return &Synthesizer{
		speech:        speech,
		maxChunkChars: maxChunkChars,
		budget:        budget,
		logger:        logger,
	}
}

// SelectScripts picks the synthesizer's input: per-chunk scripts when the
// script stage produced them, otherwise the single full script.
func SelectScripts(job *domain.Job) ([]string, error) {
	chunks, err := job.DecodeScriptChunks()
	if err != nil {
		return nil, fmt.Errorf("failed to decode script chunks: %w", err)
	}
	if len(chunks) > 0 {
		return chunks, nil
	}
	if job.GeneratedScript == "" {
		return nil, &domain.SynthesisError{Reason: "job has no script to synthesize"}
	}
	return []string{job.GeneratedScript}, nil
}

// Run synthesizes the scripts. Sub-chunks are processed sequentially; a
// sub-chunk whose duration would overshoot the budget is dropped along with
// everything after it. Zero produced segments is a SynthesisError.
func (s *Synthesizer) Run(ctx context.Context, scripts []string) (*Output, error) {
	var subChunks []string
	for _, script := range scripts {
		subChunks = append(subChunks, SplitForSynthesis(script, s.maxChunkChars)...)
	}

	if len(subChunks) == 0 {
		return nil, &domain.SynthesisError{Reason: "script is empty after normalization"}
	}

	out := &Output{}

	for i, chunk := range subChunks {
		audio, err := s.speech.Synthesize(ctx, chunk)
		if err != nil {
			return nil, &domain.SynthesisError{
				Reason: fmt.Sprintf("sub-chunk %d of %d: %v", i+1, len(subChunks), err),
			}
		}

		duration, err := MeasureDuration(audio)
		if err != nil {
			return nil, &domain.SynthesisError{
				Reason: fmt.Sprintf("sub-chunk %d produced unreadable audio: %v", i+1, err),
			}
		}

		// The first segment is always kept so a long single chunk cannot
		// starve the job into a zero-audio failure.
		if len(out.Segments) > 0 && out.TotalDuration+duration > s.budget {
			out.Truncated = true
			s.logger.Info("Duration budget reached, dropping remaining sub-chunks",
				slog.Int("synthesized", len(out.Segments)),
				slog.Int("dropped", len(subChunks)-len(out.Segments)),
				slog.Duration("total_duration", out.TotalDuration),
				slog.Duration("budget", s.budget),
			)
			break
		}

		out.Segments = append(out.Segments, audio)
		out.TotalDuration += duration

		if out.TotalDuration >= s.budget {
			out.Truncated = i < len(subChunks)-1
			if out.Truncated {
				s.logger.Info("Duration budget exhausted, dropping remaining sub-chunks",
					slog.Int("synthesized", len(out.Segments)),
					slog.Int("dropped", len(subChunks)-len(out.Segments)),
				)
			}
			break
		}
	}

	if len(out.Segments) == 0 {
		return nil, &domain.SynthesisError{Reason: "no sub-chunk produced audio"}
	}

	return out, nil
}

// MeasureDuration reads playback duration out of a WAV container.
func MeasureDuration(data []byte) (time.Duration, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return 0, fmt.Errorf("failed to read wav header: %w", err)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to decode wav duration: %w", err)
	}
	return duration, nil
}
