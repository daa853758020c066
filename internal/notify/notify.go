// Package notify dispatches one-way scoring outcome notifications. Dispatch
// happens after a submission reaches a terminal state; a failed dispatch is
// logged and never rolls back or fails the scoring transaction.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/store"
)

// Notifier delivers scoring outcomes to participants.
type Notifier interface {
	SubmissionScored(ctx context.Context, userID string, comp *model.Competition, score float64) error
	SubmissionFailed(ctx context.Context, userID string, comp *model.Competition, errorMessage string) error
}

// StoreNotifier persists notifications as store records for the platform's
// notification feed to pick up.
type StoreNotifier struct {
	store store.Store
}

// NewStoreNotifier creates a store-backed Notifier.
func NewStoreNotifier(st store.Store) *StoreNotifier {
	return &StoreNotifier{store: st}
}

func (n *StoreNotifier) SubmissionScored(ctx context.Context, userID string, comp *model.Competition, score float64) error {
	return n.store.CreateNotification(ctx, &store.Notification{
		UserID: userID,
		Kind:   "submission_scored",
		Title:  fmt.Sprintf("Submission scored: %s", comp.Title),
		Body:   fmt.Sprintf("Your submission to %s scored %.6f.", comp.Title, score),
	})
}

func (n *StoreNotifier) SubmissionFailed(ctx context.Context, userID string, comp *model.Competition, errorMessage string) error {
	return n.store.CreateNotification(ctx, &store.Notification{
		UserID: userID,
		Kind:   "submission_failed",
		Title:  fmt.Sprintf("Submission failed: %s", comp.Title),
		Body:   fmt.Sprintf("Your submission to %s could not be scored: %s", comp.Title, errorMessage),
	})
}

// LogNotifier only logs outcomes. Used by the CLI scoring path where no
// notification feed exists.
type LogNotifier struct{}

func (LogNotifier) SubmissionScored(ctx context.Context, userID string, comp *model.Competition, score float64) error {
	zap.L().Info("notify: submission scored",
		zap.String("user_id", userID),
		zap.String("competition", comp.Slug),
		zap.Float64("score", score),
	)
	return nil
}

func (LogNotifier) SubmissionFailed(ctx context.Context, userID string, comp *model.Competition, errorMessage string) error {
	zap.L().Info("notify: submission failed",
		zap.String("user_id", userID),
		zap.String("competition", comp.Slug),
		zap.String("error", errorMessage),
	)
	return nil
}
