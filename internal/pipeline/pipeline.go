// Package pipeline orchestrates the submission lifecycle: intake, blob
// persistence, scoring, and terminal bookkeeping. Intake guards fail closed;
// scoring is idempotent so at-least-once delivery never double-scores.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/monitoring"
	"github.com/meridian-ml/podium/internal/notify"
	"github.com/meridian-ml/podium/internal/queue"
	"github.com/meridian-ml/podium/internal/resilience"
	"github.com/meridian-ml/podium/internal/scorer"
	"github.com/meridian-ml/podium/internal/storage"
	"github.com/meridian-ml/podium/internal/store"
	"github.com/meridian-ml/podium/internal/validate"
)

// Intake guard failures. Callers map these to user-facing rejections.
var (
	// ErrCompetitionClosed means the competition is not accepting
	// submissions, either by status or because now is outside its window.
	ErrCompetitionClosed = errors.New("competition is not accepting submissions")

	// ErrDailyLimitReached means the participant exhausted today's quota.
	ErrDailyLimitReached = errors.New("daily submission limit reached")
)

// RejectionError carries the user-visible reason an upload was refused
// before a submission record was created.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

// rejectionSummaryLimit caps validation messages in an upload rejection.
const rejectionSummaryLimit = 3

// Config controls pipeline behavior.
type Config struct {
	// Async defers scoring to the queue; when false Submit scores inline.
	Async bool

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Pipeline wires the store, blob storage, queue, and notifier into the
// submission lifecycle.
type Pipeline struct {
	store    store.Store
	blobs    storage.Store
	queue    queue.Queue
	notifier notify.Notifier
	metrics  *monitoring.Metrics
	cfg      Config

	// breaker guards blob storage calls so workers fail fast during a
	// storage outage instead of hammering it from every retry loop.
	breaker *resilience.Breaker

	mu      sync.Mutex
	scorers map[string]*scorer.Scorer // keyed by competition id
}

// New creates a Pipeline. queue may be nil when cfg.Async is false;
// notifier and metrics may be nil.
func New(st store.Store, blobs storage.Store, q queue.Queue, notifier notify.Notifier, metrics *monitoring.Metrics, cfg Config) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	breakerCfg := resilience.DefaultBreakerConfig()
	breakerCfg.ShouldTrip = func(err error) bool {
		// A missing blob is an answer, not an outage.
		return !errors.Is(err, storage.ErrNotFound)
	}
	breakerCfg.OnStateChange = func(from, to resilience.BreakerState) {
		zap.L().Warn("pipeline: blob storage breaker state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return &Pipeline{
		store:    st,
		blobs:    blobs,
		queue:    q,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
		breaker:  resilience.NewBreaker(breakerCfg),
		scorers:  make(map[string]*scorer.Scorer),
	}
}

// scorerFor returns the cached per-competition Scorer, building one on
// first use so the solution file is loaded at most once per process.
func (p *Pipeline) scorerFor(comp *model.Competition) (*scorer.Scorer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.scorers[comp.ID]; ok {
		return s, nil
	}
	s, err := scorer.ForCompetition(p.blobs, comp)
	if err != nil {
		return nil, err
	}
	p.scorers[comp.ID] = s
	return s, nil
}

// Submit accepts one prediction upload. Guards run in order and fail
// closed: competition open, submission window, daily quota, then a format
// pre-check that rejects files the scorer could never accept. On success
// the blob is persisted, a PENDING submission is recorded, and scoring
// runs inline or is queued depending on configuration.
func (p *Pipeline) Submit(ctx context.Context, comp *model.Competition, userID, teamID, filename string, content []byte) (*model.Submission, error) {
	now := p.cfg.Now()

	if comp.Status != model.CompetitionActive {
		return nil, ErrCompetitionClosed
	}
	if now.Before(comp.StartDate) || now.After(comp.EndDate) {
		return nil, ErrCompetitionClosed
	}

	if comp.DailySubmissionLimit > 0 {
		count, err := p.store.CountToday(ctx, comp.ID, userID, now)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: count today's submissions")
		}
		if count >= comp.DailySubmissionLimit {
			return nil, ErrDailyLimitReached
		}
	}

	if reason := precheck(comp, content); reason != "" {
		return nil, &RejectionError{Reason: reason}
	}

	key := path.Join("submissions", comp.ID, userID, uuid.NewString()+".csv")
	locator, err := resilience.BreakerDo(ctx, p.breaker, func(ctx context.Context) (string, error) {
		return p.blobs.Save(ctx, key, content)
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: save submission file")
	}

	sub := &model.Submission{
		ID:            uuid.NewString(),
		CompetitionID: comp.ID,
		UserID:        userID,
		TeamID:        teamID,
		FilePath:      locator,
		FileName:      filename,
		Status:        model.StatusPending,
		CreatedAt:     now.UTC(),
	}
	if err := p.store.CreateSubmission(ctx, sub); err != nil {
		return nil, eris.Wrap(err, "pipeline: create submission")
	}

	zap.L().Info("pipeline: submission accepted",
		zap.String("submission_id", sub.ID),
		zap.String("competition", comp.Slug),
		zap.String("user_id", userID),
		zap.Bool("async", p.cfg.Async),
	)

	if !p.cfg.Async {
		scored, err := p.Process(ctx, sub.ID)
		if err != nil {
			// Inline scoring never leaves the submission PENDING: any
			// unexpected error is converted to a terminal failure.
			msg := "Scoring error: an unexpected error occurred during scoring"
			if _, mfErr := p.store.MarkFailed(ctx, sub.ID, msg); mfErr != nil {
				zap.L().Error("pipeline: mark failed after inline error",
					zap.String("submission_id", sub.ID),
					zap.Error(mfErr),
				)
			}
			zap.L().Error("pipeline: inline scoring failed",
				zap.String("submission_id", sub.ID),
				zap.Error(err),
			)
			return p.store.GetSubmission(ctx, sub.ID)
		}
		return scored, nil
	}

	job := queue.Job{Name: queue.JobScoreSubmission, SubmissionID: sub.ID}
	if err := p.queue.Enqueue(ctx, job); err != nil {
		return nil, eris.Wrap(err, "pipeline: enqueue scoring job")
	}
	p.metrics.SetQueueDepth(p.queue.Depth())
	return sub, nil
}

// Process scores one submission by id. It is safe to call more than once
// for the same id: a terminal submission is returned as stored with no
// recompute, and the PENDING to PROCESSING transition is atomic so
// concurrent workers cannot both score it.
func (p *Pipeline) Process(ctx context.Context, submissionID string) (*model.Submission, error) {
	sub, err := p.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load submission")
	}
	if sub.Status.Terminal() {
		zap.L().Info("pipeline: submission already terminal, skipping",
			zap.String("submission_id", sub.ID),
			zap.String("status", string(sub.Status)),
		)
		return sub, nil
	}

	ok, err := p.store.TransitionStatus(ctx, sub.ID, model.StatusPending, model.StatusProcessing)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: claim submission")
	}
	if !ok {
		cur, err := p.store.GetSubmission(ctx, sub.ID)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: reload submission")
		}
		if cur.Status != model.StatusProcessing {
			// Another worker finished it first.
			return cur, nil
		}
		// A retried or redelivered job whose previous attempt died
		// mid-flight. Scoring is deterministic and terminal writes are
		// guarded, so continuing is safe.
		sub = cur
	}

	comp, err := p.store.GetCompetition(ctx, sub.CompetitionID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load competition")
	}
	sc, err := p.scorerFor(comp)
	if err != nil {
		return p.fail(ctx, sub, comp, fmt.Sprintf("Scoring error: %v", err))
	}

	content, err := resilience.BreakerDo(ctx, p.breaker, func(ctx context.Context) ([]byte, error) {
		return p.blobs.Load(ctx, storage.ExtractKey(sub.FilePath))
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return p.fail(ctx, sub, comp, "Scoring error: submission file not found")
		}
		if errors.Is(err, resilience.ErrBreakerOpen) {
			return nil, resilience.Transient(err)
		}
		return nil, eris.Wrap(err, "pipeline: load submission file")
	}

	started := p.cfg.Now()
	res := sc.Score(ctx, content)
	elapsed := p.cfg.Now().Sub(started)

	if res.Kind == scorer.FailureInfrastructure {
		// Leave the claim in place and let the retry wrapper re-enter;
		// the claim logic accepts PROCESSING on re-entry.
		return nil, resilience.Transient(eris.New("pipeline: " + res.ErrorMessage))
	}

	if !res.Success {
		return p.failWithDuration(ctx, sub, comp, res.ErrorMessage, elapsed)
	}

	// The public and private scores are identical until split-key scoring
	// lands.
	score := *res.Score
	ok, err = p.store.MarkScored(ctx, sub.ID, score, score, p.cfg.Now().UTC())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: mark scored")
	}
	if !ok {
		// Lost the terminal-write race to a concurrent delivery; that
		// delivery's result and notification stand.
		return p.store.GetSubmission(ctx, sub.ID)
	}
	p.metrics.ObserveOutcome(string(model.StatusScored), elapsed)

	zap.L().Info("pipeline: submission scored",
		zap.String("submission_id", sub.ID),
		zap.String("competition", comp.Slug),
		zap.Float64("score", score),
		zap.Duration("elapsed", elapsed),
	)

	if p.notifier != nil {
		if err := p.notifier.SubmissionScored(ctx, sub.UserID, comp, score); err != nil {
			zap.L().Warn("pipeline: scored notification failed",
				zap.String("submission_id", sub.ID),
				zap.Error(err),
			)
		}
	}
	return p.store.GetSubmission(ctx, sub.ID)
}

// fail writes a terminal failure and notifies the participant.
func (p *Pipeline) fail(ctx context.Context, sub *model.Submission, comp *model.Competition, msg string) (*model.Submission, error) {
	return p.failWithDuration(ctx, sub, comp, msg, 0)
}

func (p *Pipeline) failWithDuration(ctx context.Context, sub *model.Submission, comp *model.Competition, msg string, elapsed time.Duration) (*model.Submission, error) {
	ok, err := p.store.MarkFailed(ctx, sub.ID, msg)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: mark failed")
	}
	if !ok {
		return p.store.GetSubmission(ctx, sub.ID)
	}
	p.metrics.ObserveOutcome(string(model.StatusFailed), elapsed)

	zap.L().Info("pipeline: submission failed",
		zap.String("submission_id", sub.ID),
		zap.String("competition", comp.Slug),
		zap.String("error", msg),
	)

	if p.notifier != nil {
		if err := p.notifier.SubmissionFailed(ctx, sub.UserID, comp, msg); err != nil {
			zap.L().Warn("pipeline: failure notification failed",
				zap.String("submission_id", sub.ID),
				zap.Error(err),
			)
		}
	}
	return p.store.GetSubmission(ctx, sub.ID)
}

// precheck rejects uploads that could never validate, before any state is
// created for them. It checks shape only: columns present, ids usable,
// values numeric. The full check against the solution ids runs in the
// scorer.
func precheck(comp *model.Competition, content []byte) string {
	res := validate.Validate(content, validate.Options{
		IDColumn:    comp.IDColumn,
		ValueColumn: comp.PredictionColumn,
	})
	if res.Valid {
		return ""
	}
	msgs := make([]string, 0, rejectionSummaryLimit+1)
	for i, issue := range res.Errors {
		if i == rejectionSummaryLimit {
			msgs = append(msgs, fmt.Sprintf("... and %d more errors", len(res.Errors)-rejectionSummaryLimit))
			break
		}
		msgs = append(msgs, issue.Message)
	}
	return strings.Join(msgs, "; ")
}
