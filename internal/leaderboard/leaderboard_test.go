package leaderboard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// addScored inserts a submission and marks it scored.
func addScored(t *testing.T, st store.Store, compID, userID, teamID string, score float64, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	sub := &model.Submission{
		CompetitionID: compID,
		UserID:        userID,
		TeamID:        teamID,
		FilePath:      "submissions/x.csv",
		FileName:      "x.csv",
		CreatedAt:     createdAt,
	}
	require.NoError(t, st.CreateSubmission(ctx, sub))
	ok, err := st.MarkScored(ctx, sub.ID, score, score, createdAt.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestComputeHigherIsBetter(t *testing.T) {
	st := newTestStore(t)
	comp := &model.Competition{ID: "c1", Slug: "titanic", EvaluationMetric: "auc_roc"}

	addScored(t, st, "c1", "alice", "", 0.81, baseTime)
	addScored(t, st, "c1", "alice", "", 0.92, baseTime.Add(time.Hour))
	addScored(t, st, "c1", "bob", "", 0.85, baseTime.Add(2*time.Hour))

	entries, err := New(st, nil).Compute(context.Background(), comp, 0)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "alice", entries[0].ParticipantID)
	assert.Equal(t, 0.92, entries[0].BestScore)
	assert.Equal(t, 2, entries[0].SubmissionCount)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "bob", entries[1].ParticipantID)
}

func TestComputeLowerIsBetter(t *testing.T) {
	st := newTestStore(t)
	comp := &model.Competition{ID: "c1", Slug: "housing", EvaluationMetric: "rmse"}

	addScored(t, st, "c1", "alice", "", 3.2, baseTime)
	addScored(t, st, "c1", "alice", "", 2.1, baseTime.Add(time.Hour))
	addScored(t, st, "c1", "bob", "", 2.8, baseTime.Add(2*time.Hour))

	entries, err := New(st, nil).Compute(context.Background(), comp, 0)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].ParticipantID)
	assert.Equal(t, 2.1, entries[0].BestScore)
	assert.Equal(t, "bob", entries[1].ParticipantID)
}

func TestComputeTieBreaksOnEarliestSubmission(t *testing.T) {
	st := newTestStore(t)
	comp := &model.Competition{ID: "c1", Slug: "titanic", EvaluationMetric: "accuracy"}

	// Bob reaches 0.9 first but submitted after Alice's first entry;
	// the tie breaks on each participant's earliest submission overall.
	addScored(t, st, "c1", "alice", "", 0.5, baseTime)
	addScored(t, st, "c1", "bob", "", 0.9, baseTime.Add(time.Hour))
	addScored(t, st, "c1", "alice", "", 0.9, baseTime.Add(2*time.Hour))

	entries, err := New(st, nil).Compute(context.Background(), comp, 0)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].ParticipantID)
	assert.Equal(t, "bob", entries[1].ParticipantID)
	assert.Equal(t, 0.9, entries[0].BestScore)
	assert.Equal(t, 0.9, entries[1].BestScore)
}

func TestComputeTeamMode(t *testing.T) {
	st := newTestStore(t)

	addScored(t, st, "c1", "alice", "team-red", 0.7, baseTime)
	addScored(t, st, "c1", "bob", "team-red", 0.9, baseTime.Add(time.Hour))
	addScored(t, st, "c1", "carol", "", 0.8, baseTime.Add(2*time.Hour))

	teamComp := &model.Competition{ID: "c1", Slug: "t", EvaluationMetric: "auc_roc", TeamMode: true}
	entries, err := New(st, nil).Compute(context.Background(), teamComp, 0)
	require.NoError(t, err)

	// Alice and Bob collapse into team-red; Carol has no team and ranks
	// as herself.
	require.Len(t, entries, 2)
	assert.Equal(t, "team-red", entries[0].ParticipantID)
	assert.Equal(t, 0.9, entries[0].BestScore)
	assert.Equal(t, 2, entries[0].SubmissionCount)
	assert.Equal(t, "carol", entries[1].ParticipantID)

	// Without team mode the same rows rank per user.
	soloComp := &model.Competition{ID: "c1", Slug: "t", EvaluationMetric: "auc_roc"}
	entries, err = New(st, nil).Compute(context.Background(), soloComp, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestComputeLimitAndRanks(t *testing.T) {
	st := newTestStore(t)
	comp := &model.Competition{ID: "c1", Slug: "t", EvaluationMetric: "auc_roc"}

	addScored(t, st, "c1", "alice", "", 0.9, baseTime)
	addScored(t, st, "c1", "bob", "", 0.8, baseTime.Add(time.Minute))
	addScored(t, st, "c1", "carol", "", 0.7, baseTime.Add(2*time.Minute))

	entries, err := New(st, nil).Compute(context.Background(), comp, 2)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 2, entries[1].Rank)
}

func TestComputeExcludesUnscored(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	comp := &model.Competition{ID: "c1", Slug: "t", EvaluationMetric: "auc_roc"}

	pending := &model.Submission{CompetitionID: "c1", UserID: "dave", FilePath: "f", FileName: "f", CreatedAt: baseTime}
	require.NoError(t, st.CreateSubmission(ctx, pending))

	failed := &model.Submission{CompetitionID: "c1", UserID: "erin", FilePath: "f", FileName: "f", CreatedAt: baseTime}
	require.NoError(t, st.CreateSubmission(ctx, failed))
	ok, err := st.MarkFailed(ctx, failed.ID, "Scoring error: bad file")
	require.NoError(t, err)
	require.True(t, ok)

	entries, err := New(st, nil).Compute(ctx, comp, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestComputeNameResolver(t *testing.T) {
	st := newTestStore(t)
	comp := &model.Competition{ID: "c1", Slug: "t", EvaluationMetric: "auc_roc"}

	addScored(t, st, "c1", "alice", "", 0.9, baseTime)

	names := func(ctx context.Context, id string) string {
		if id == "alice" {
			return "Alice A."
		}
		return ""
	}
	entries, err := New(st, names).Compute(context.Background(), comp, 0)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].ParticipantID)
	assert.Equal(t, "Alice A.", entries[0].DisplayName)
}
