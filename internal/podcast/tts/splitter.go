package tts

import (
	"regexp"
	"strings"
)

// MaxChunkChars is the largest text the speech endpoint accepts per call.
const MaxChunkChars = 4800

var (
	horizontalWS = regexp.MustCompile(`[ \t]+`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
	// A sentence runs to terminal punctuation plus trailing whitespace;
	// the second alternative catches an unterminated tail.
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+\s*|[^.!?]+$`)
)

// NormalizeWhitespace collapses runs of spaces and tabs and squeezes
// multiple blank lines down to one before the script goes to synthesis.
func NormalizeWhitespace(text string) string {
	text = horizontalWS.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SplitForSynthesis breaks a script into sub-chunks of at most limit
// characters, preferring sentence boundaries. A sentence longer than the
// limit is broken at the nearest preceding punctuation or space, with a
// hard cut as the last resort.
func SplitForSynthesis(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxChunkChars
	}

	text = NormalizeWhitespace(text)
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	sentences := sentenceRe.FindAllString(text, -1)

	var chunks []string
	var current strings.Builder

	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, sentence := range sentences {
		if len(sentence) > limit {
			flush()
			chunks = append(chunks, splitLongSentence(strings.TrimSpace(sentence), limit)...)
			continue
		}

		if current.Len()+len(sentence) > limit {
			flush()
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

// splitLongSentence cuts a single oversized sentence at the nearest
// punctuation-or-space before the limit, hard-cutting when there is none.
func splitLongSentence(s string, limit int) []string {
	var parts []string

	for len(s) > limit {
		cut := 0
		for i := limit; i > 0; i-- {
			switch s[i-1] {
			case ' ', ',', ';', ':', '-':
				cut = i
			}
			if cut > 0 {
				break
			}
		}
		if cut == 0 {
			cut = limit
		}

		part := strings.TrimSpace(s[:cut])
		if part != "" {
			parts = append(parts, part)
		}
		s = strings.TrimSpace(s[cut:])
	}

	if s != "" {
		parts = append(parts, s)
	}

	return parts
}
