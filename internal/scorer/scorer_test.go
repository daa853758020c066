package scorer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/storage"
)

const solutionCSV = "id,target\na,1\nb,0\nc,1\nd,0\n"

func newTestScorer(t *testing.T, metricName string) *Scorer {
	t.Helper()
	blobs := storage.NewMemory()
	_, err := blobs.Save(context.Background(), "solutions/test.csv", []byte(solutionCSV))
	require.NoError(t, err)

	s, err := New(blobs, Config{
		SolutionKey: "solutions/test.csv",
		Metric:      metricName,
	})
	require.NoError(t, err)
	return s
}

func TestNewUnknownMetric(t *testing.T) {
	_, err := New(storage.NewMemory(), Config{
		SolutionKey: "solutions/test.csv",
		Metric:      "log_loss",
	})
	require.Error(t, err)
}

func TestScoreSuccess(t *testing.T) {
	s := newTestScorer(t, "auc_roc")

	// Perfect ranking: positives above negatives.
	res := s.Score(context.Background(), []byte("id,prediction\na,0.9\nb,0.1\nc,0.8\nd,0.2\n"))

	require.True(t, res.Success)
	require.NotNil(t, res.Score)
	assert.Equal(t, 1.0, *res.Score)
	assert.Equal(t, FailureNone, res.Kind)
	assert.Empty(t, res.ErrorMessage)
}

func TestScoreDeterministic(t *testing.T) {
	s := newTestScorer(t, "rmse")
	sub := []byte("id,prediction\na,0.8\nb,0.3\nc,0.9\nd,0.1\n")

	first := s.Score(context.Background(), sub)
	require.True(t, first.Success)
	for i := 0; i < 5; i++ {
		again := s.Score(context.Background(), sub)
		require.True(t, again.Success)
		assert.Equal(t, *first.Score, *again.Score)
	}
}

func TestScoreRowOrderIrrelevant(t *testing.T) {
	s := newTestScorer(t, "auc_roc")

	a := s.Score(context.Background(), []byte("id,prediction\na,0.9\nb,0.1\nc,0.8\nd,0.2\n"))
	b := s.Score(context.Background(), []byte("id,prediction\nd,0.2\nc,0.8\nb,0.1\na,0.9\n"))

	require.True(t, a.Success)
	require.True(t, b.Success)
	assert.Equal(t, *a.Score, *b.Score)
}

func TestScoreValidationFailure(t *testing.T) {
	s := newTestScorer(t, "auc_roc")

	res := s.Score(context.Background(), []byte("id,prediction\na,0.9\nb,not-a-number\n"))

	require.False(t, res.Success)
	assert.Equal(t, FailureValidation, res.Kind)
	assert.Contains(t, res.ErrorMessage, "Invalid float value")
	require.NotNil(t, res.Validation)
}

func TestScoreErrorSummaryElision(t *testing.T) {
	s := newTestScorer(t, "auc_roc")

	// Eight invalid values produce eight issues plus two set-mismatch
	// issues; only five messages plus the elision suffix reach the user.
	var sb strings.Builder
	sb.WriteString("id,prediction\n")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&sb, "x%d,bad\n", i)
	}
	res := s.Score(context.Background(), []byte(sb.String()))

	require.False(t, res.Success)
	assert.Equal(t, FailureValidation, res.Kind)
	parts := strings.Split(res.ErrorMessage, "; ")
	require.Len(t, parts, 6)
	assert.Contains(t, parts[5], "more errors")
}

func TestScoreMetricDomainFailure(t *testing.T) {
	blobs := storage.NewMemory()
	// Single-class solution: AUC is undefined.
	_, err := blobs.Save(context.Background(), "solutions/ones.csv", []byte("id,target\na,1\nb,1\n"))
	require.NoError(t, err)

	s, err := New(blobs, Config{SolutionKey: "solutions/ones.csv", Metric: "auc_roc"})
	require.NoError(t, err)

	res := s.Score(context.Background(), []byte("id,prediction\na,0.9\nb,0.1\n"))

	require.False(t, res.Success)
	assert.Equal(t, FailureMetricDomain, res.Kind)
	assert.Contains(t, res.ErrorMessage, "Scoring error:")
}

func TestScoreSolutionMissing(t *testing.T) {
	s, err := New(storage.NewMemory(), Config{
		SolutionKey: "solutions/absent.csv",
		Metric:      "rmse",
	})
	require.NoError(t, err)

	res := s.Score(context.Background(), []byte("id,prediction\na,0.5\n"))

	require.False(t, res.Success)
	assert.Equal(t, FailureSolution, res.Kind)
	assert.Equal(t, "Solution file error: solutions/absent.csv not found", res.ErrorMessage)
}

func TestScoreSolutionInvalid(t *testing.T) {
	blobs := storage.NewMemory()
	_, err := blobs.Save(context.Background(), "solutions/dup.csv", []byte("id,target\na,1\na,0\n"))
	require.NoError(t, err)

	s, err := New(blobs, Config{SolutionKey: "solutions/dup.csv", Metric: "rmse"})
	require.NoError(t, err)

	res := s.Score(context.Background(), []byte("id,prediction\na,0.5\n"))

	require.False(t, res.Success)
	assert.Equal(t, FailureSolution, res.Kind)
	assert.Contains(t, res.ErrorMessage, "Solution file error:")
}

func TestScoreSolutionCached(t *testing.T) {
	blobs := storage.NewMemory()
	_, err := blobs.Save(context.Background(), "solutions/test.csv", []byte(solutionCSV))
	require.NoError(t, err)

	s, err := New(blobs, Config{SolutionKey: "solutions/test.csv", Metric: "auc_roc"})
	require.NoError(t, err)

	sub := []byte("id,prediction\na,0.9\nb,0.1\nc,0.8\nd,0.2\n")
	first := s.Score(context.Background(), sub)
	require.True(t, first.Success)

	// Deleting the blob after the first score must not matter.
	_, err = blobs.Delete(context.Background(), "solutions/test.csv")
	require.NoError(t, err)

	again := s.Score(context.Background(), sub)
	require.True(t, again.Success)
	assert.Equal(t, *first.Score, *again.Score)
}

func TestScoreIDSetMismatch(t *testing.T) {
	s := newTestScorer(t, "auc_roc")

	res := s.Score(context.Background(), []byte("id,prediction\na,0.9\nb,0.1\n"))

	require.False(t, res.Success)
	assert.Equal(t, FailureValidation, res.Kind)
	assert.Contains(t, res.ErrorMessage, "Missing 2 expected IDs: c, d")
}

func TestForCompetition(t *testing.T) {
	blobs := storage.NewMemory()
	_, err := blobs.Save(context.Background(), "solutions/comp.csv", []byte("row,truth\na,1\nb,0\n"))
	require.NoError(t, err)

	s, err := ForCompetition(blobs, &model.Competition{
		EvaluationMetric: "accuracy",
		SolutionKey:      "solutions/comp.csv",
		IDColumn:         "row",
		PredictionColumn: "guess",
		TargetColumn:     "truth",
	})
	require.NoError(t, err)

	res := s.Score(context.Background(), []byte("row,guess\na,1\nb,1\n"))
	require.True(t, res.Success)
	assert.Equal(t, 0.5, *res.Score)
}
