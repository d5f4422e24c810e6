// Package scoring picks between the external intelligence scorer and the
// deterministic heuristic for each (requirement, trainer) pair.
package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/common/metrics"
	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/matching/signals"
	"trainer-match-workers/internal/models"
)

// Selector tries the primary scorer first and falls back to the heuristic on any error.
type Selector struct {
	primary  matching.IntelligenceScorer
	fallback *Heuristic
	timeout  time.Duration
	logger   logger.Logger
}

// NewSelector builds a selector. primary may be nil, in which case every call
// goes straight to the heuristic. timeout bounds each primary call; 0 means the
// caller's context is the only deadline.
func NewSelector(primary matching.IntelligenceScorer, fallback *Heuristic, timeout time.Duration, log logger.Logger) *Selector {
	return &Selector{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		logger:   logger.ForComponent(log, "score-selector"),
	}
}

// Score returns a two-decimal score in [0,1]. An error means even the fallback
// failed, or ctx was cancelled.
func (s *Selector) Score(ctx context.Context, req *models.Requirement, trainer models.Trainer) (matching.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return matching.Assessment{}, err
	}

	if s.primary != nil {
		a, err := s.scorePrimary(ctx, req, trainer)
		if err == nil {
			metrics.CandidatesScored.WithLabelValues(string(a.Strategy)).Inc()
			return a, nil
		}
		// the caller gave up; falling back would only waste the remaining work
		if ctxErr := ctx.Err(); ctxErr != nil {
			return matching.Assessment{}, ctxErr
		}
		metrics.PrimaryScorerFallbacks.Inc()
		s.logger.Warn("intelligence scorer failed, using heuristic", map[string]interface{}{
			"requirementId": req.ID,
			"trainerId":     trainer.ID,
			"error":         err.Error(),
		})
	}

	a, err := s.fallback.Score(ctx, req, trainer)
	if err != nil {
		return matching.Assessment{}, err
	}
	a.Score = finalize(a.Score)
	metrics.CandidatesScored.WithLabelValues(string(a.Strategy)).Inc()
	return a, nil
}

func (s *Selector) scorePrimary(ctx context.Context, req *models.Requirement, trainer models.Trainer) (matching.Assessment, error) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	v, err := s.primary.Score(callCtx, RequirementContext(req), CandidateContext(trainer))
	if err != nil {
		return matching.Assessment{}, err
	}
	if math.IsNaN(v.Score) || math.IsInf(v.Score, 0) || v.Score < 0 || v.Score > 1 {
		return matching.Assessment{}, fmt.Errorf("intelligence score %v outside [0,1]", v.Score)
	}

	explanation := strings.TrimSpace(v.Explanation)
	if explanation == "" {
		explanation = "Intelligence-assessed match"
	}
	return matching.Assessment{
		Score:       finalize(v.Score),
		Explanation: explanation,
		Strategy:    matching.StrategyIntelligence,
	}, nil
}

func finalize(score float64) float64 {
	return signals.Clamp01(signals.Round2(score))
}
