// Package scorer combines the CSV validator, the solution loader, and the
// metric registry into a single scoring call. Output is deterministic for a
// fixed (solution, submission, metric) triple.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-ml/podium/internal/metric"
	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/storage"
	"github.com/meridian-ml/podium/internal/validate"
)

// FailureKind classifies why scoring failed, so callers can branch without
// matching message text.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureSolution       FailureKind = "solution"
	FailureValidation     FailureKind = "validation"
	FailureMetricDomain   FailureKind = "metric_domain"
	FailureInfrastructure FailureKind = "infrastructure"
)

// Result is the outcome of scoring one submission.
type Result struct {
	Success      bool
	Score        *float64
	Kind         FailureKind
	ErrorMessage string
	Validation   *validate.Result
}

func failure(kind FailureKind, msg string) Result {
	return Result{Kind: kind, ErrorMessage: msg}
}

// Config selects the solution, metric, and column names for one competition.
type Config struct {
	SolutionKey      string
	Metric           string
	IDColumn         string
	PredictionColumn string
	TargetColumn     string
}

// Scorer scores submissions for a single competition. The solution is
// loaded lazily on first use and cached for the Scorer's lifetime; a
// concurrent first use may load it twice, which is wasteful but safe since
// the source is immutable.
type Scorer struct {
	blobs    storage.Store
	cfg      Config
	metric   metric.Metric
	solution atomic.Pointer[validate.Solution]
}

// New creates a Scorer. The metric name is resolved eagerly so an unknown
// metric fails at construction, not at first score.
func New(blobs storage.Store, cfg Config) (*Scorer, error) {
	m, err := metric.Lookup(cfg.Metric)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: resolve metric")
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if cfg.PredictionColumn == "" {
		cfg.PredictionColumn = "prediction"
	}
	if cfg.TargetColumn == "" {
		cfg.TargetColumn = "target"
	}
	return &Scorer{blobs: blobs, cfg: cfg, metric: m}, nil
}

// ForCompetition builds a Scorer from a competition record, applying the
// value constraints its metric implies.
func ForCompetition(blobs storage.Store, comp *model.Competition) (*Scorer, error) {
	return New(blobs, Config{
		SolutionKey:      comp.SolutionKey,
		Metric:           comp.EvaluationMetric,
		IDColumn:         comp.IDColumn,
		PredictionColumn: comp.PredictionColumn,
		TargetColumn:     comp.TargetColumn,
	})
}

// LowerIsBetter reports the configured metric's direction.
func (s *Scorer) LowerIsBetter() bool { return s.metric.LowerIsBetter }

// loadSolution returns the cached solution, loading it on first use.
func (s *Scorer) loadSolution(ctx context.Context) (*validate.Solution, error) {
	if sol := s.solution.Load(); sol != nil {
		return sol, nil
	}

	content, err := s.blobs.Load(ctx, s.cfg.SolutionKey)
	if err != nil {
		return nil, err
	}
	sol, err := validate.LoadSolution(content, s.cfg.IDColumn, s.cfg.TargetColumn)
	if err != nil {
		return nil, err
	}

	s.solution.Store(sol)
	return sol, nil
}

// errorSummaryLimit caps how many validation messages reach the user.
const errorSummaryLimit = 5

// Score validates and scores a submission. Validation and metric-domain
// problems become failure Results; only infrastructure problems surface as
// failures of kind infrastructure.
func (s *Scorer) Score(ctx context.Context, content []byte) Result {
	sol, err := s.loadSolution(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return failure(FailureSolution, fmt.Sprintf("Solution file error: %s not found", s.cfg.SolutionKey))
		}
		if errors.Is(err, validate.ErrInvalidSolution) {
			return failure(FailureSolution, fmt.Sprintf("Solution file error: %v", err))
		}
		return failure(FailureInfrastructure, fmt.Sprintf("Solution file error: %v", err))
	}

	res := validate.Validate(content, validate.Options{
		IDColumn:    s.cfg.IDColumn,
		ValueColumn: s.cfg.PredictionColumn,
		ExpectedIDs: sol.IDs,
		ValueMin:    s.metric.Constraints.ValueMin,
		ValueMax:    s.metric.Constraints.ValueMax,
		ValueType:   s.metric.Constraints.ValueType,
	})
	if !res.Valid {
		return Result{
			Kind:         FailureValidation,
			ErrorMessage: summarizeErrors(res.Errors),
			Validation:   &res,
		}
	}

	// Pair (prediction, truth) in solution order. After a successful
	// validation against the expected ids no solution id can be absent from
	// the lookup; skip rather than panic if one ever is.
	lookup := make(map[string]float64, len(res.IDs))
	for i, id := range res.IDs {
		lookup[id] = res.Values[i]
	}
	predictions := make([]float64, 0, sol.Len())
	actuals := make([]float64, 0, sol.Len())
	for _, id := range sol.IDs {
		pred, ok := lookup[id]
		if !ok {
			continue
		}
		predictions = append(predictions, pred)
		actuals = append(actuals, sol.Targets[id])
	}

	score, err := s.metric.Compute(predictions, actuals)
	if err != nil {
		if metric.IsDomainError(err) {
			return failure(FailureMetricDomain, fmt.Sprintf("Scoring error: %v", err))
		}
		return failure(FailureInfrastructure, fmt.Sprintf("Scoring error: %v", err))
	}

	zap.L().Debug("scorer: scored submission",
		zap.String("metric", s.metric.Name),
		zap.Float64("score", score),
		zap.Int("rows", res.RowCount),
	)

	return Result{Success: true, Score: &score, Validation: &res}
}

// summarizeErrors joins up to errorSummaryLimit validation messages plus an
// elision count into one user-visible string.
func summarizeErrors(issues []validate.Issue) string {
	msgs := make([]string, 0, errorSummaryLimit+1)
	for i, issue := range issues {
		if i == errorSummaryLimit {
			msgs = append(msgs, fmt.Sprintf("... and %d more errors", len(issues)-errorSummaryLimit))
			break
		}
		msgs = append(msgs, issue.Message)
	}
	return strings.Join(msgs, "; ")
}
