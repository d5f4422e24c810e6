// Package ranking scores the whole trainer pool against one requirement and keeps the top K.
package ranking

import (
	"context"
	"errors"
	"sort"
	"time"

	apperrors "trainer-match-workers/internal/common/errors"
	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/common/metrics"
	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "trainer-match-workers/ranking"

const defaultMaxConcurrency = 8

// Scorer scores one trainer against one requirement.
type Scorer interface {
	Score(ctx context.Context, req *models.Requirement, trainer models.Trainer) (matching.Assessment, error)
}

// CandidateOutcome is the per-trainer result of a pass: either an assessment or an error.
type CandidateOutcome struct {
	Trainer    models.Trainer
	Assessment matching.Assessment
	Err        error
}

// OK reports whether the trainer was scored.
func (o CandidateOutcome) OK() bool { return o.Err == nil }

type Ranker struct {
	requirements   matching.RequirementStore
	pool           matching.TrainerPool
	scorer         Scorer
	maxConcurrency int
	logger         logger.Logger
}

func NewRanker(requirements matching.RequirementStore, pool matching.TrainerPool, scorer Scorer, maxConcurrency int, log logger.Logger) *Ranker {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Ranker{
		requirements:   requirements,
		pool:           pool,
		scorer:         scorer,
		maxConcurrency: maxConcurrency,
		logger:         logger.ForComponent(log, "candidate-ranker"),
	}
}

// RankTopK returns at most k trainers ordered by descending score. k <= 0 means 5.
func (r *Ranker) RankTopK(ctx context.Context, requirementID string, k int) ([]matching.RankedCandidate, error) {
	ranking, err := r.Rank(ctx, requirementID, k)
	if err != nil {
		return nil, err
	}
	return ranking.Candidates, nil
}

// Rank is RankTopK plus the loaded requirement and the list of dropped trainers.
//
// A missing requirement or unreadable pool is fatal. A trainer whose scoring fails
// is left out of the result. Ties keep pool order.
func (r *Ranker) Rank(ctx context.Context, requirementID string, k int) (*matching.Ranking, error) {
	if k <= 0 {
		k = matching.DefaultTopK
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ranking.Rank", trace.WithAttributes(
		attribute.String("requirement.id", requirementID),
		attribute.Int("k", k),
	))
	defer span.End()

	ranking, err := r.rank(ctx, requirementID, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("pool.size", ranking.PoolSize),
		attribute.Int("candidates.dropped", len(ranking.Dropped)),
		attribute.Int("candidates.returned", len(ranking.Candidates)),
	)
	return ranking, nil
}

func (r *Ranker) rank(ctx context.Context, requirementID string, k int) (*matching.Ranking, error) {
	start := time.Now()

	req, err := r.requirements.GetRequirement(ctx, requirementID)
	if err != nil {
		if errors.Is(err, matching.ErrRequirementNotFound) {
			return nil, apperrors.NewRequirementNotFoundError(requirementID, err)
		}
		return nil, apperrors.NewQueryExecutionFailedError("requirement", err)
	}
	if req == nil {
		return nil, apperrors.NewRequirementNotFoundError(requirementID, matching.ErrRequirementNotFound)
	}

	trainers, err := r.pool.ListTrainers(ctx)
	if err != nil {
		return nil, apperrors.NewCandidatePoolUnavailableError(err)
	}

	outcomes := r.evaluate(ctx, req, trainers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranking := &matching.Ranking{
		Requirement: req,
		PoolSize:    len(trainers),
		Candidates:  make([]matching.RankedCandidate, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		if !o.OK() {
			metrics.CandidatesDropped.Inc()
			r.logger.Warn("candidate dropped from ranking", map[string]interface{}{
				"requirementId": requirementID,
				"trainerId":     o.Trainer.ID,
				"error":         o.Err.Error(),
			})
			ranking.Dropped = append(ranking.Dropped, matching.CandidateFailure{TrainerID: o.Trainer.ID, Err: o.Err})
			continue
		}
		ranking.Candidates = append(ranking.Candidates, matching.RankedCandidate{Trainer: o.Trainer, Assessment: o.Assessment})
	}

	SortByScore(ranking.Candidates)
	if len(ranking.Candidates) > k {
		ranking.Candidates = ranking.Candidates[:k]
	}

	r.logger.Info("ranking completed", map[string]interface{}{
		"requirementId": requirementID,
		"poolSize":      len(trainers),
		"dropped":       len(ranking.Dropped),
		"returned":      len(ranking.Candidates),
		"duration":      time.Since(start).Milliseconds(),
	})
	return ranking, nil
}

// evaluate scores every trainer with at most maxConcurrency calls in flight.
// outcomes[i] always belongs to trainers[i].
func (r *Ranker) evaluate(ctx context.Context, req *models.Requirement, trainers []models.Trainer) []CandidateOutcome {
	outcomes := make([]CandidateOutcome, len(trainers))

	var g errgroup.Group
	g.SetLimit(r.maxConcurrency)
	for i := range trainers {
		i := i
		outcomes[i].Trainer = trainers[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			a, err := r.scorer.Score(ctx, req, trainers[i])
			if err != nil {
				outcomes[i].Err = apperrors.NewCandidateScoringFailedError(trainers[i].ID, err)
				return nil
			}
			outcomes[i].Assessment = a
			return nil
		})
	}
	_ = g.Wait() // goroutines record failures in outcomes and never return an error

	return outcomes
}

// SortByScore orders candidates by descending score, keeping input order for ties.
func SortByScore(candidates []matching.RankedCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Assessment.Score > candidates[j].Assessment.Score
	})
}
