package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

const conceptSystemPrompt = "You extract key concepts from study material. " +
	"Reply with only a JSON array of objects, each with a \"concept\" and an \"explanation\" field."

const conceptUserPromptFmt = "Identify the 3 to 5 most important concepts in the following text. " +
	"For each, give a one or two sentence explanation a listener could follow without seeing the text.\n\n%s"

// defaultMaxConcurrent bounds parallel model calls during extraction.
const defaultMaxConcurrent = 3

// ConceptExtractor fans one completion call out per text chunk and merges
// the results. A chunk whose call or parse fails is skipped; the extraction
// as a whole fails only when every chunk failed.
type ConceptExtractor struct {
	llm           Completer
	maxConcurrent int
	logger        *slog.Logger
}

func NewConceptExtractor(llm Completer, maxConcurrent int, logger *slog.Logger) *ConceptExtractor {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &ConceptExtractor{
		llm:           llm,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Extract runs concept extraction over the chunks concurrently and returns
// the deduplicated, sanitized, capped aggregate in chunk order.
func (e *ConceptExtractor) Extract(ctx context.Context, chunks []string) ([]domain.Concept, error) {
	if len(chunks) == 0 {
		return nil, &domain.ModelResponseError{Err: errors.New("no text chunks to extract concepts from")}
	}

	type result struct {
		index    int
		concepts []domain.Concept
		err      error
	}

	results := make(chan result, len(chunks))
	semaphore := make(chan struct{}, e.maxConcurrent)

	for i, chunk := range chunks {
		semaphore <- struct{}{}
		go func(i int, chunk string) {
			defer func() { <-semaphore }()

			concepts, err := e.extractChunk(ctx, chunk)
			results <- result{index: i, concepts: concepts, err: err}
		}(i, chunk)
	}

	perChunk := make([][]domain.Concept, len(chunks))
	var failures int
	var lastErr error

	for range chunks {
		r := <-results
		if r.err != nil {
			failures++
			lastErr = r.err
			e.logger.Warn("Concept extraction failed for chunk",
				slog.Int("chunk_index", r.index),
				slog.String("error", r.err.Error()),
			)
			continue
		}
		perChunk[r.index] = r.concepts
	}

	if failures == len(chunks) {
		return nil, &domain.ModelResponseError{
			Err: fmt.Errorf("all %d chunks failed, last error: %w", len(chunks), lastErr),
		}
	}

	var flat []domain.Concept
	for _, cs := range perChunk {
		flat = append(flat, cs...)
	}

	normalized := NormalizeConcepts(flat)
	if len(normalized) == 0 {
		return nil, &domain.ModelResponseError{
			Err: errors.New("extraction produced no usable concepts"),
		}
	}

	e.logger.Info("Concept extraction finished",
		slog.Int("chunks", len(chunks)),
		slog.Int("failed_chunks", failures),
		slog.Int("concepts", len(normalized)),
	)

	return normalized, nil
}

func (e *ConceptExtractor) extractChunk(ctx context.Context, chunk string) ([]domain.Concept, error) {
	reply, err := e.llm.Complete(ctx, conceptSystemPrompt, fmt.Sprintf(conceptUserPromptFmt, chunk))
	if err != nil {
		return nil, err
	}

	return ParseConceptArray(reply)
}
