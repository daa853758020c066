// Package store persists submissions, competition records, and scoring
// notifications. Two backends implement the same interface: SQLite for
// single-node deployments and Postgres for shared ones.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/resilience"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("record not found")

// Notification is a persisted scoring outcome message for a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the persistence interface for the scoring subsystem.
type Store interface {
	// Submissions
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)

	// TransitionStatus atomically moves a submission from one status to
	// another. It reports false without error when the submission is no
	// longer in the from status, which is how concurrent workers lose the
	// race safely.
	TransitionStatus(ctx context.Context, id string, from, to model.SubmissionStatus) (bool, error)

	// MarkScored and MarkFailed write a terminal state. They apply only to
	// non-terminal submissions; a terminal submission is left untouched and
	// reported as false.
	MarkScored(ctx context.Context, id string, publicScore, privateScore float64, scoredAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, errorMessage string) (bool, error)

	ListScored(ctx context.Context, competitionID string) ([]model.Submission, error)
	ListByUser(ctx context.Context, competitionID, userID string, limit int) ([]model.Submission, error)

	// ListByStatus returns submissions in the given status across all
	// competitions, oldest first. The requeue sweep uses it to recover
	// submissions stranded by a crash.
	ListByStatus(ctx context.Context, status model.SubmissionStatus, limit int) ([]model.Submission, error)
	CountToday(ctx context.Context, competitionID, userID string, now time.Time) (int, error)

	// Competitions (read-mostly collaborator records)
	PutCompetition(ctx context.Context, comp *model.Competition) error
	GetCompetition(ctx context.Context, id string) (*model.Competition, error)
	GetCompetitionBySlug(ctx context.Context, slug string) (*model.Competition, error)

	// Notifications
	CreateNotification(ctx context.Context, n *Notification) error

	// Dead letters: scoring jobs whose retries were exhausted, kept with
	// their real cause for operator inspection.
	CreateDeadLetter(ctx context.Context, d *resilience.DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]resilience.DeadLetter, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// dayStart returns midnight UTC of the given instant, the boundary the
// daily submission limit counts from.
func dayStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
