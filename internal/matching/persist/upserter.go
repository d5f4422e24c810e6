// Package persist writes ranked candidates back as match results.
package persist

import (
	"context"

	apperrors "trainer-match-workers/internal/common/errors"
	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/common/metrics"
	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/models"
)

// PairFailure is a candidate whose match result could not be written.
type PairFailure struct {
	TrainerID string
	Err       error
}

// PersistReport summarizes one Persist call. Persisted follows the input order.
type PersistReport struct {
	Persisted []models.MatchResult
	Failures  []PairFailure
	Pruned    int64
}

type Options struct {
	// PruneStale removes PENDING rows of trainers that fell out of the
	// shortlist. It only runs when every pair was written.
	PruneStale bool
}

type Upserter struct {
	store  matching.MatchResultStore
	locker KeyedLocker
	opts   Options
	logger logger.Logger
}

func NewUpserter(store matching.MatchResultStore, locker KeyedLocker, opts Options, log logger.Logger) *Upserter {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Upserter{
		store:  store,
		locker: locker,
		opts:   opts,
		logger: logger.ForComponent(log, "result-upserter"),
	}
}

// Persist upserts one row per candidate. A failed pair is recorded and the rest
// continue. Statuses of existing rows are left alone.
func (u *Upserter) Persist(ctx context.Context, requirementID string, ranked []matching.RankedCandidate) (*PersistReport, error) {
	report := &PersistReport{Persisted: make([]models.MatchResult, 0, len(ranked))}

	for _, c := range ranked {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, outcome, err := u.upsertOne(ctx, requirementID, c)
		if err != nil {
			metrics.MatchUpserts.WithLabelValues("failed").Inc()
			u.logger.Error("failed to persist match result", map[string]interface{}{
				"requirementId": requirementID,
				"trainerId":     c.Trainer.ID,
				"error":         err.Error(),
			})
			report.Failures = append(report.Failures, PairFailure{TrainerID: c.Trainer.ID, Err: err})
			continue
		}
		metrics.MatchUpserts.WithLabelValues(string(outcome)).Inc()
		report.Persisted = append(report.Persisted, result)
	}

	if u.opts.PruneStale && len(report.Failures) == 0 {
		keep := make([]string, 0, len(ranked))
		for _, c := range ranked {
			keep = append(keep, c.Trainer.ID)
		}
		n, err := u.store.PruneStale(ctx, requirementID, keep)
		if err != nil {
			u.logger.Warn("failed to prune stale match results", map[string]interface{}{
				"requirementId": requirementID,
				"error":         err.Error(),
			})
		} else {
			report.Pruned = n
		}
	}

	u.logger.Info("match results persisted", map[string]interface{}{
		"requirementId": requirementID,
		"persisted":     len(report.Persisted),
		"failed":        len(report.Failures),
		"pruned":        report.Pruned,
	})
	return report, nil
}

func (u *Upserter) upsertOne(ctx context.Context, requirementID string, c matching.RankedCandidate) (models.MatchResult, matching.UpsertOutcome, error) {
	unlock, err := u.locker.Lock(ctx, PairKey(requirementID, c.Trainer.ID))
	if err != nil {
		return models.MatchResult{}, "", err
	}
	defer unlock()

	result, outcome, err := u.store.UpsertPair(ctx, requirementID, c.Trainer.ID, c.Assessment.Score, c.Assessment.Explanation)
	if err != nil {
		if _, ok := apperrors.AsStandardError(err); ok {
			return models.MatchResult{}, "", err
		}
		return models.MatchResult{}, "", apperrors.NewMatchPersistFailedError(requirementID, c.Trainer.ID, err)
	}
	return result, outcome, nil
}
