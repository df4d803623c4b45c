package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// ConceptCap bounds the aggregate concept list across all chunks.
const ConceptCap = 15

// Models rarely return bare JSON; the fallback pulls the first bracketed
// array out of whatever prose surrounds it.
var arrayRe = regexp.MustCompile(`(?s)\[.*\]`)

var angleStripper = strings.NewReplacer("<", "", ">", "")

// ParseConceptArray parses a model reply into concepts. It first tries the
// reply verbatim as JSON, then falls back to the first bracketed array in
// the text. Anything else is a ModelResponseError.
func ParseConceptArray(raw string) ([]domain.Concept, error) {
	trimmed := strings.TrimSpace(raw)

	var concepts []domain.Concept
	if err := json.Unmarshal([]byte(trimmed), &concepts); err == nil {
		return concepts, nil
	}

	match := arrayRe.FindString(trimmed)
	if match == "" {
		return nil, &domain.ModelResponseError{
			Err: fmt.Errorf("reply contains no JSON array"),
		}
	}

	if err := json.Unmarshal([]byte(match), &concepts); err != nil {
		return nil, &domain.ModelResponseError{
			Err: fmt.Errorf("bracketed array is not valid concept JSON: %w", err),
		}
	}

	return concepts, nil
}

// NormalizeConcepts deduplicates by exact concept string (first occurrence
// wins), strips angle brackets from both fields, drops entries left with an
// empty field, and caps the result at ConceptCap in encounter order.
func NormalizeConcepts(concepts []domain.Concept) []domain.Concept {
	seen := make(map[string]struct{}, len(concepts))
	out := make([]domain.Concept, 0, len(concepts))

	for _, c := range concepts {
		if _, dup := seen[c.Concept]; dup {
			continue
		}
		seen[c.Concept] = struct{}{}

		cleaned := domain.Concept{
			Concept:     strings.TrimSpace(angleStripper.Replace(c.Concept)),
			Explanation: strings.TrimSpace(angleStripper.Replace(c.Explanation)),
		}
		if cleaned.Concept == "" || cleaned.Explanation == "" {
			continue
		}

		out = append(out, cleaned)
		if len(out) == ConceptCap {
			break
		}
	}

	return out
}
