package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// fakeCompleter replies per user-prompt substring, failing prompts that
// match failOn.
type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	failOn  string
	replies map[string]string
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.failOn != "" && strings.Contains(user, f.failOn) {
		return "", &domain.ModelResponseError{Err: errors.New("simulated model outage")}
	}

	for needle, reply := range f.replies {
		if strings.Contains(user, needle) {
			return reply, nil
		}
	}
	return `[{"concept":"default","explanation":"fallback reply"}]`, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestConceptExtractorMergesChunksInOrder(t *testing.T) {
	fake := &fakeCompleter{
		replies: map[string]string{
			"chunk one": `[{"concept":"alpha","explanation":"first"}]`,
			"chunk two": `[{"concept":"beta","explanation":"second"},{"concept":"alpha","explanation":"dup"}]`,
		},
	}
	extractor := NewConceptExtractor(fake, 2, testLogger())

	concepts, err := extractor.Extract(context.Background(), []string{"chunk one", "chunk two"})

	require.NoError(t, err)
	require.Len(t, concepts, 2)
	assert.Equal(t, "alpha", concepts[0].Concept)
	assert.Equal(t, "first", concepts[0].Explanation)
	assert.Equal(t, "beta", concepts[1].Concept)
	assert.Equal(t, 2, fake.calls)
}

func TestConceptExtractorToleratesPartialFailure(t *testing.T) {
	fake := &fakeCompleter{
		failOn: "flaky chunk",
		replies: map[string]string{
			"good chunk": `[{"concept":"gamma","explanation":"survives"}]`,
		},
	}
	extractor := NewConceptExtractor(fake, 2, testLogger())

	concepts, err := extractor.Extract(context.Background(), []string{"good chunk", "flaky chunk"})

	require.NoError(t, err)
	require.Len(t, concepts, 1)
	assert.Equal(t, "gamma", concepts[0].Concept)
}

func TestConceptExtractorFailsWhenAllChunksFail(t *testing.T) {
	fake := &fakeCompleter{failOn: "chunk"}
	extractor := NewConceptExtractor(fake, 2, testLogger())

	_, err := extractor.Extract(context.Background(), []string{"chunk a", "chunk b"})

	require.Error(t, err)
	var modelErr *domain.ModelResponseError
	assert.ErrorAs(t, err, &modelErr)
}

func TestConceptExtractorRejectsEmptyInput(t *testing.T) {
	extractor := NewConceptExtractor(&fakeCompleter{}, 2, testLogger())

	_, err := extractor.Extract(context.Background(), nil)

	require.Error(t, err)
}

func TestConceptExtractorCapsAggregate(t *testing.T) {
	reply := strings.Builder{}
	reply.WriteString("[")
	for i := 0; i < 10; i++ {
		if i > 0 {
			reply.WriteString(",")
		}
		fmt.Fprintf(&reply, `{"concept":"c%%d-%d","explanation":"e"}`, i)
	}
	reply.WriteString("]")

	fake := &fakeCompleter{
		replies: map[string]string{
			"one": strings.ReplaceAll(reply.String(), "%d-", "one-"),
			"two": strings.ReplaceAll(reply.String(), "%d-", "two-"),
		},
	}
	extractor := NewConceptExtractor(fake, 2, testLogger())

	concepts, err := extractor.Extract(context.Background(), []string{"one", "two"})

	require.NoError(t, err)
	assert.Len(t, concepts, ConceptCap)
	assert.True(t, strings.HasPrefix(concepts[0].Concept, "cone-"))
}

func TestScriptGeneratorTruncatesSource(t *testing.T) {
	var gotUser string
	fake := &completerFunc{fn: func(_ context.Context, _, user string) (string, error) {
		gotUser = user
		return "Welcome to the show.", nil
	}}
	gen := NewScriptGenerator(fake, testLogger())

	long := strings.Repeat("s", ScriptSourceCeiling+500)
	script, err := gen.Generate(context.Background(),
		[]domain.Concept{{Concept: "x", Explanation: "y"}}, long)

	require.NoError(t, err)
	assert.Equal(t, "Welcome to the show.", script)
	assert.LessOrEqual(t, strings.Count(gotUser, "s"), ScriptSourceCeiling+100)
}

func TestScriptGeneratorRejectsEmptyReply(t *testing.T) {
	fake := &completerFunc{fn: func(context.Context, string, string) (string, error) {
		return "   \n ", nil
	}}
	gen := NewScriptGenerator(fake, testLogger())

	_, err := gen.Generate(context.Background(), nil, "text")

	require.Error(t, err)
	var modelErr *domain.ModelResponseError
	assert.ErrorAs(t, err, &modelErr)
}

type completerFunc struct {
	fn func(ctx context.Context, system, user string) (string, error)
}

func (c *completerFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return c.fn(ctx, system, user)
}
