// Package chunker splits extracted document text into paragraph-bounded
// segments that fit under a character budget.
package chunker

import "strings"

// DefaultMaxChars is the per-chunk character budget used by the pipeline.
const DefaultMaxChars = 10000

// separator joins paragraphs inside a chunk and is what Split breaks on, so
// joining the chunks back with it reproduces the input byte for byte.
const separator = "\n\n"

// Split breaks text on blank-line boundaries and greedily packs whole
// paragraphs into chunks of at most maxChars characters. A single paragraph
// longer than maxChars is passed through as its own oversized chunk; there
// is no intra-paragraph fallback.
func Split(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	paragraphs := strings.Split(text, separator)

	var chunks []string
	var current strings.Builder

	for _, para := range paragraphs {
		if current.Len() == 0 {
			current.WriteString(para)
			continue
		}

		if current.Len()+len(separator)+len(para) <= maxChars {
			current.WriteString(separator)
			current.WriteString(para)
			continue
		}

		chunks = append(chunks, current.String())
		current.Reset()
		current.WriteString(para)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// Join is the inverse of Split: it reassembles chunks into the original
// text by re-inserting the paragraph separator between them.
func Join(chunks []string) string {
	return strings.Join(chunks, separator)
}
