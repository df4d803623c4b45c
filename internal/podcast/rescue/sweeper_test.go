package rescue

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

type fakeStore struct {
	stalled   []string
	resetErrs map[string]error
	resets    []string
}

func (f *fakeStore) FindStalled(_ context.Context, _ time.Duration, jobID string) ([]string, error) {
	if jobID == "" {
		return f.stalled, nil
	}
	for _, id := range f.stalled {
		if id == jobID {
			return []string{id}, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ResetForRescue(_ context.Context, jobID string) error {
	f.resets = append(f.resets, jobID)
	return f.resetErrs[jobID]
}

type fakePublisher struct {
	published []string
	failOn    string
}

func (f *fakePublisher) PublishStage(_ context.Context, stage domain.Stage, jobID string) error {
	if jobID == f.failOn {
		return &domain.TriggerError{Err: errors.New("broker unavailable")}
	}
	if stage != domain.StageAnalyze {
		return errors.New("rescue must re-enter at the analyze stage")
	}
	f.published = append(f.published, jobID)
	return nil
}

func newTestSweeper(store *fakeStore, pub *fakePublisher) *Sweeper {
	return NewSweeper(store, pub, DefaultStaleness, slog.New(slog.DiscardHandler))
}

func TestSweeperRescuesStalledJobs(t *testing.T) {
	store := &fakeStore{stalled: []string{"job-a", "job-b"}}
	pub := &fakePublisher{}

	results, err := newTestSweeper(store, pub).Run(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
	}
	assert.Equal(t, []string{"job-a", "job-b"}, pub.published)
}

func TestSweeperConfinedToOneJob(t *testing.T) {
	store := &fakeStore{stalled: []string{"job-a", "job-b"}}
	pub := &fakePublisher{}

	results, err := newTestSweeper(store, pub).Run(context.Background(), "job-b")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "job-b", results[0].JobID)
	assert.Equal(t, []string{"job-b"}, pub.published)
}

func TestSweeperSkipsJobThatMovedOn(t *testing.T) {
	store := &fakeStore{
		stalled:   []string{"job-a"},
		resetErrs: map[string]error{"job-a": domain.ErrStaleTransition},
	}
	pub := &fakePublisher{}

	results, err := newTestSweeper(store, pub).Run(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Empty(t, pub.published, "a job that moved on must not be republished")
}

func TestSweeperReportsPublishFailure(t *testing.T) {
	store := &fakeStore{stalled: []string{"job-a"}}
	pub := &fakePublisher{failOn: "job-a"}

	results, err := newTestSweeper(store, pub).Run(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "broker unavailable")
}

func TestSweeperNoStalledJobs(t *testing.T) {
	results, err := newTestSweeper(&fakeStore{}, &fakePublisher{}).Run(context.Background(), "")

	require.NoError(t, err)
	assert.Empty(t, results)
}
