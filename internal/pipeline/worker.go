package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/queue"
	"github.com/meridian-ml/podium/internal/resilience"
)

// WorkerConfig controls the background scoring workers.
type WorkerConfig struct {
	// Workers is the number of concurrent scoring goroutines. Default: 4.
	Workers int

	// RatePerSec throttles job starts across all workers. Zero disables
	// the throttle.
	RatePerSec float64

	// Retry governs how transient scoring failures are retried before the
	// submission is forced to FAILED.
	Retry resilience.RetryConfig
}

// exhaustedMessage is what participants see when retries run out. The real
// cause stays in the logs.
const exhaustedMessage = "Scoring error: an unexpected error occurred during scoring"

// RunWorkers consumes scoring jobs until the context is cancelled or the
// queue closes. Each job is retried on transient failure; when attempts
// are exhausted the submission is forced to FAILED so nothing is left
// PENDING forever.
func (p *Pipeline) RunWorkers(ctx context.Context, cfg WorkerConfig) error {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Workers)
	}

	zap.L().Info("pipeline: workers starting",
		zap.Int("workers", cfg.Workers),
		zap.Float64("rate_per_sec", cfg.RatePerSec),
		zap.Int("max_attempts", cfg.Retry.MaxAttempts),
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			return p.workerLoop(ctx, worker, cfg, limiter)
		})
	}
	err := g.Wait()
	zap.L().Info("pipeline: workers stopped", zap.Error(err))
	if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
		return nil
	}
	return err
}

func (p *Pipeline) workerLoop(ctx context.Context, worker int, cfg WorkerConfig, limiter *rate.Limiter) error {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		p.metrics.SetQueueDepth(p.queue.Depth())

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		p.handleJob(ctx, worker, job, cfg.Retry)
	}
}

// Requeue enqueues scoring jobs for submissions still PENDING, oldest
// first. Run at startup and on an interval it recovers work stranded by a
// crash between intake and scoring; re-enqueueing an already-queued
// submission is harmless because Process is idempotent.
func (p *Pipeline) Requeue(ctx context.Context, limit int) (int, error) {
	pending, err := p.store.ListByStatus(ctx, model.StatusPending, limit)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list pending submissions")
	}
	queued := 0
	for _, sub := range pending {
		job := queue.Job{Name: queue.JobScoreSubmission, SubmissionID: sub.ID}
		if err := p.queue.Enqueue(ctx, job); err != nil {
			return queued, eris.Wrap(err, "pipeline: requeue submission")
		}
		queued++
	}
	p.metrics.SetQueueDepth(p.queue.Depth())
	if queued > 0 {
		zap.L().Info("pipeline: requeued pending submissions", zap.Int("count", queued))
	}
	return queued, nil
}

// RecoverStalled enqueues submissions stuck in PROCESSING. Only call it at
// startup before workers run: a live worker may legitimately hold a
// PROCESSING claim, and re-enqueueing it would score the file twice for
// nothing.
func (p *Pipeline) RecoverStalled(ctx context.Context, limit int) (int, error) {
	stalled, err := p.store.ListByStatus(ctx, model.StatusProcessing, limit)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list stalled submissions")
	}
	for i, sub := range stalled {
		job := queue.Job{Name: queue.JobScoreSubmission, SubmissionID: sub.ID}
		if err := p.queue.Enqueue(ctx, job); err != nil {
			return i, eris.Wrap(err, "pipeline: requeue stalled submission")
		}
	}
	if len(stalled) > 0 {
		zap.L().Warn("pipeline: recovered stalled submissions", zap.Int("count", len(stalled)))
	}
	return len(stalled), nil
}

// handleJob runs one scoring job through the retry wrapper. Scoring
// outcomes (validation and metric failures) are terminal writes inside
// Process and return nil here; only infrastructure errors escape and are
// retried.
func (p *Pipeline) handleJob(ctx context.Context, worker int, job queue.Job, retry resilience.RetryConfig) {
	if job.Name != queue.JobScoreSubmission {
		zap.L().Warn("pipeline: unknown job dropped",
			zap.Int("worker", worker),
			zap.String("job", job.Name),
		)
		return
	}

	started := time.Now()
	logRetry := resilience.RetryLogger("pipeline", "score submission "+job.SubmissionID)
	retry.OnRetry = func(attempt int, err error) {
		p.metrics.ObserveRetry()
		logRetry(attempt, err)
	}

	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		_, err := p.Process(ctx, job.SubmissionID)
		return err
	})
	if err == nil {
		zap.L().Debug("pipeline: job done",
			zap.Int("worker", worker),
			zap.String("submission_id", job.SubmissionID),
			zap.Duration("elapsed", time.Since(started)),
		)
		return
	}
	if ctx.Err() != nil {
		// Shutdown mid-job: the submission stays claimed and a restart
		// picks it up through requeue or the operator's sweep.
		return
	}

	zap.L().Error("pipeline: scoring attempts exhausted",
		zap.Int("worker", worker),
		zap.String("submission_id", job.SubmissionID),
		zap.Error(err),
	)
	// Keep the real cause queryable; the participant only sees the generic
	// message.
	letter := &resilience.DeadLetter{
		SubmissionID: job.SubmissionID,
		Error:        err.Error(),
		ErrorType:    resilience.ClassifyError(err),
		Attempts:     retry.MaxAttempts,
	}
	if dlErr := p.store.CreateDeadLetter(ctx, letter); dlErr != nil {
		zap.L().Error("pipeline: record dead letter",
			zap.String("submission_id", job.SubmissionID),
			zap.Error(dlErr),
		)
	}
	if _, mfErr := p.store.MarkFailed(ctx, job.SubmissionID, exhaustedMessage); mfErr != nil {
		zap.L().Error("pipeline: mark failed after exhausted retries",
			zap.String("submission_id", job.SubmissionID),
			zap.Error(mfErr),
		)
	}
	p.metrics.ObserveOutcome("failed", time.Since(started))
}
