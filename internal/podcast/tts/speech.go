package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultSynthesisTimeout bounds one speech call. Synthesis is slow for
// long inputs, so this is far looser than the chat-completion deadline.
const DefaultSynthesisTimeout = 150 * time.Second

// Speech synthesizes one text sub-chunk into WAV audio bytes.
// Satisfied by OpenAIVoice; tests substitute fakes.
type Speech interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// VoiceConfig holds speech-endpoint settings.
type VoiceConfig struct {
	APIKey  string
	Model   string
	Voice   string
	Timeout time.Duration
}

// OpenAIVoice is the production Speech backed by the OpenAI audio API.
type OpenAIVoice struct {
	oa      openai.Client
	model   string
	voice   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewOpenAIVoice(cfg *VoiceConfig, logger *slog.Logger) *OpenAIVoice {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSynthesisTimeout
	}

	return &OpenAIVoice{
		oa:      openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.Model,
		voice:   cfg.Voice,
		timeout: timeout,
		logger:  logger,
	}
}

// Synthesize renders text to WAV via the speech endpoint.
func (v *OpenAIVoice) Synthesize(ctx context.Context, text string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	resp, err := v.oa.Audio.Speech.New(callCtx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(v.model),
		Voice:          openai.AudioSpeechNewParamsVoice(v.voice),
		Input:          text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("speech call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}

	v.logger.Debug("Speech synthesis finished",
		slog.Int("input_chars", len(text)),
		slog.Int("audio_bytes", len(data)),
		slog.Duration("latency", time.Since(start)),
	)

	return data, nil
}
