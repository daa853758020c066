// Package queue provides the task queue that defers submission scoring to
// background workers. Delivery is at-least-once: a job that fails mid-flight
// may be handed to another worker, so handlers must be idempotent.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = errors.New("queue closed")

// JobScoreSubmission is the job name for scoring one submission.
const JobScoreSubmission = "score_submission"

// Job carries only the submission id; the worker reloads everything else
// from the store so stale payloads cannot be replayed.
type Job struct {
	Name         string `json:"name"`
	SubmissionID string `json:"submission_id"`
	Attempt      int    `json:"attempt"`
}

// Queue is the scoring task queue contract.
type Queue interface {
	// Enqueue hands a job to the queue. It fails when the queue is full or
	// closed; the caller decides whether that fails the upload.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available, the context is cancelled, or
	// the queue is closed.
	Dequeue(ctx context.Context) (Job, error)

	// Depth reports the number of jobs waiting.
	Depth() int

	Close() error
}

// Memory is a channel-backed in-process queue. Shutdown is signalled on a
// separate done channel rather than by closing the job channel, so an
// Enqueue blocked on a full queue can never hit a closed channel.
type Memory struct {
	jobs chan Job
	done chan struct{}
	once sync.Once
}

// NewMemory creates an in-process queue holding up to size pending jobs.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 256
	}
	return &Memory{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-m.done:
		return eris.Wrap(ErrClosed, "queue: enqueue")
	default:
	}

	select {
	case m.jobs <- job:
		return nil
	case <-m.done:
		return eris.Wrap(ErrClosed, "queue: enqueue")
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "queue: enqueue")
	}
}

func (m *Memory) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-m.jobs:
		return job, nil
	case <-m.done:
		// Drain jobs that were buffered before the close.
		select {
		case job := <-m.jobs:
			return job, nil
		default:
			return Job{}, ErrClosed
		}
	case <-ctx.Done():
		return Job{}, eris.Wrap(ctx.Err(), "queue: dequeue")
	}
}

func (m *Memory) Depth() int {
	return len(m.jobs)
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
