// Package extract turns uploaded PDF documents into raw text for the
// pipeline and decides whether the text needs chunking.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// ChunkingThreshold is the character count above which extracted text is
// split before concept extraction.
const ChunkingThreshold = 10000

// Result is the output of text extraction.
type Result struct {
	ExtractedText string
	NeedsChunking bool
}

// Text parses the document bytes and returns the extracted text. A document
// that cannot be parsed, or that yields only whitespace, is a terminal
// ExtractionError for the job.
func Text(data []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &domain.ExtractionError{Reason: fmt.Sprintf("unable to parse document: %v", err)}
	}

	var sb strings.Builder
	totalPages := reader.NumPage()

	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		p := reader.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, &domain.ExtractionError{
				Reason: fmt.Sprintf("unable to extract text from page %d: %v", pageIndex, err),
			}
		}

		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	extracted := strings.TrimSpace(sb.String())
	if extracted == "" {
		return nil, &domain.ExtractionError{Reason: "document contains no extractable text"}
	}

	return &Result{
		ExtractedText: extracted,
		NeedsChunking: NeedsChunking(extracted),
	}, nil
}

// NeedsChunking reports whether text exceeds the chunking threshold.
func NeedsChunking(text string) bool {
	return len(text) > ChunkingThreshold
}

// Extractor adapts Text to the worker's injection point.
type Extractor struct{}

func (Extractor) Text(data []byte) (*Result, error) {
	return Text(data)
}
