package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// ScriptSourceCeiling caps how much source text goes into the script
// prompt. Longer documents are represented by their concepts.
const ScriptSourceCeiling = 8000

const scriptSystemPrompt = "You write scripts for a single-host educational podcast. " +
	"Write flowing spoken prose only: no headings, no stage directions, no markdown."

const scriptUserPromptFmt = "Write a podcast episode script teaching the concepts below. " +
	"Explain each one conversationally, connect them, and close with a short recap.\n\n" +
	"Concepts:\n%s\nSource material:\n%s"

// ScriptGenerator turns the concept list plus truncated source text into a
// spoken-style script with a single completion call.
type ScriptGenerator struct {
	llm    Completer
	logger *slog.Logger
}

func NewScriptGenerator(llm Completer, logger *slog.Logger) *ScriptGenerator {
	return &ScriptGenerator{llm: llm, logger: logger}
}

// Generate produces the episode script. The source text is truncated to
// ScriptSourceCeiling characters before prompting; failure or an empty
// reply surfaces as ModelResponseError and fails the job immediately.
func (g *ScriptGenerator) Generate(ctx context.Context, concepts []domain.Concept, sourceText string) (string, error) {
	if truncated := len(sourceText) > ScriptSourceCeiling; truncated {
		g.logger.Info("Truncating source text for script prompt",
			slog.Int("original_chars", len(sourceText)),
			slog.Int("ceiling", ScriptSourceCeiling),
		)
		sourceText = sourceText[:ScriptSourceCeiling]
	}

	var list strings.Builder
	for _, c := range concepts {
		fmt.Fprintf(&list, "- %s: %s\n", c.Concept, c.Explanation)
	}

	script, err := g.llm.Complete(ctx, scriptSystemPrompt,
		fmt.Sprintf(scriptUserPromptFmt, list.String(), sourceText))
	if err != nil {
		return "", err
	}

	script = strings.TrimSpace(script)
	if script == "" {
		return "", &domain.ModelResponseError{Err: fmt.Errorf("script completion returned empty text")}
	}

	return script, nil
}
