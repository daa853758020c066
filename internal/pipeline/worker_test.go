package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-ml/podium/internal/model"
)

func TestRunWorkersScoresQueuedSubmissions(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ids []string
	for _, user := range []string{"alice", "bob", "carol"} {
		sub, err := f.pipeline.Submit(ctx, f.comp, user, "", "p.csv", []byte(perfectCSV))
		require.NoError(t, err)
		ids = append(ids, sub.ID)
	}

	done := make(chan error, 1)
	go func() {
		done <- f.pipeline.RunWorkers(ctx, WorkerConfig{Workers: 2})
	}()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			sub, err := f.store.GetSubmission(ctx, id)
			if err != nil || sub.Status != model.StatusScored {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)

	for _, id := range ids {
		sub, err := f.store.GetSubmission(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 1.0, *sub.PublicScore)
	}
}

func TestRunWorkersStopsOnQueueClose(t *testing.T) {
	f := newFixture(t, true)

	done := make(chan error, 1)
	go func() {
		done <- f.pipeline.RunWorkers(context.Background(), WorkerConfig{Workers: 1})
	}()

	require.NoError(t, f.queue.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop after queue close")
	}
}
