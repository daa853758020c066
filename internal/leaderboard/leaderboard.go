// Package leaderboard ranks participants from persisted scored submissions.
// Rankings are derived fresh on every query from an eventual snapshot of the
// store; nothing here is persisted.
package leaderboard

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-ml/podium/internal/metric"
	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/store"
)

// NameResolver maps a participant id to a display name. The surrounding
// platform owns user and team records; when nil, the participant id is
// shown as-is.
type NameResolver func(ctx context.Context, participantID string) string

// Aggregator computes leaderboards from the submission store.
type Aggregator struct {
	store store.Store
	names NameResolver
}

// New creates an Aggregator. names may be nil.
func New(st store.Store, names NameResolver) *Aggregator {
	return &Aggregator{store: st, names: names}
}

// participantStats accumulates one participant's scored submissions.
type participantStats struct {
	id    string
	best  float64
	count int
	first model.Submission // earliest scored submission overall
	last  model.Submission
}

// Compute ranks participants for a competition. The best score follows the
// metric's direction; ties break on the participant's earliest submission
// time across all their scored submissions, not only the best-scoring one.
// Ranks are contiguous and strictly increasing from 1. Participants with no
// scored submissions are excluded; an empty board is valid.
func (a *Aggregator) Compute(ctx context.Context, comp *model.Competition, limit int) ([]model.LeaderboardEntry, error) {
	subs, err := a.store.ListScored(ctx, comp.ID)
	if err != nil {
		return nil, eris.Wrap(err, "leaderboard: list scored submissions")
	}

	lowerIsBetter := metric.LowerIsBetter(comp.EvaluationMetric)

	stats := make(map[string]*participantStats)
	var order []string // first-seen order keeps grouping deterministic
	for _, sub := range subs {
		if sub.PublicScore == nil {
			continue
		}
		pid := sub.Participant(comp.TeamMode)
		ps, ok := stats[pid]
		if !ok {
			ps = &participantStats{id: pid, best: *sub.PublicScore, first: sub, last: sub}
			stats[pid] = ps
			order = append(order, pid)
		}
		ps.count++
		if better(*sub.PublicScore, ps.best, lowerIsBetter) {
			ps.best = *sub.PublicScore
		}
		if sub.CreatedAt.Before(ps.first.CreatedAt) {
			ps.first = sub
		}
		if sub.CreatedAt.After(ps.last.CreatedAt) {
			ps.last = sub
		}
	}

	ranked := make([]*participantStats, 0, len(stats))
	for _, pid := range order {
		ranked = append(ranked, stats[pid])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].best != ranked[j].best {
			return better(ranked[i].best, ranked[j].best, lowerIsBetter)
		}
		return ranked[i].first.CreatedAt.Before(ranked[j].first.CreatedAt)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	entries := make([]model.LeaderboardEntry, len(ranked))
	for i, ps := range ranked {
		name := ps.id
		if a.names != nil {
			if resolved := a.names(ctx, ps.id); resolved != "" {
				name = resolved
			}
		}
		entries[i] = model.LeaderboardEntry{
			Rank:            i + 1,
			ParticipantID:   ps.id,
			DisplayName:     name,
			BestScore:       ps.best,
			SubmissionCount: ps.count,
			FirstSubmission: ps.first.CreatedAt,
			LastSubmission:  ps.last.CreatedAt,
		}
	}

	zap.L().Debug("leaderboard: computed",
		zap.String("competition", comp.Slug),
		zap.Int("participants", len(entries)),
	)
	return entries, nil
}

// better reports whether candidate beats current under the metric direction.
func better(candidate, current float64, lowerIsBetter bool) bool {
	if lowerIsBetter {
		return candidate < current
	}
	return candidate > current
}
