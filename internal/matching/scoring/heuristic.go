package scoring

import (
	"context"
	"fmt"

	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/matching/signals"
	"trainer-match-workers/internal/models"
)

// Mode selects how the fallback heuristic combines signals.
type Mode string

const (
	// ModeSkills scores on tag overlap alone.
	ModeSkills Mode = "skills"
	// ModeWeighted blends all five signals using Weights.
	ModeWeighted Mode = "weighted"
)

const (
	SkillsExplanation   = "Skills-based heuristic match"
	WeightedExplanation = "Weighted heuristic match"
)

// ParseMode accepts "skills" or "weighted".
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeSkills, ModeWeighted:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("unknown heuristic mode %q", raw)
	}
}

// Weights for ModeWeighted. They must sum to 1.
type Weights struct {
	Tags         float64
	Geo          float64
	Budget       float64
	Availability float64
	Rating       float64
}

// DefaultWeights favour skills and split the rest evenly.
var DefaultWeights = Weights{
	Tags:         0.40,
	Geo:          0.15,
	Budget:       0.15,
	Availability: 0.15,
	Rating:       0.15,
}

func (w Weights) sum() float64 {
	return w.Tags + w.Geo + w.Budget + w.Availability + w.Rating
}

// Breakdown holds the individual signal values behind a weighted score.
type Breakdown struct {
	Tags         float64
	Geo          float64
	Budget       float64
	Availability float64
	Rating       float64
}

// Heuristic is the deterministic fallback scorer.
type Heuristic struct {
	mode    Mode
	weights Weights
	source  matching.SignalSource
}

// NewHeuristic builds a fallback scorer. source may be nil in ModeSkills; in
// ModeWeighted a nil source makes availability and rating neutral.
func NewHeuristic(mode Mode, weights Weights, source matching.SignalSource) (*Heuristic, error) {
	if mode == "" {
		mode = ModeSkills
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == ModeWeighted {
		if s := weights.sum(); s < 0.999 || s > 1.001 {
			return nil, fmt.Errorf("heuristic weights must sum to 1, got %.3f", s)
		}
	}
	return &Heuristic{mode: mode, weights: weights, source: source}, nil
}

func (h *Heuristic) Mode() Mode { return h.mode }

// Score computes the heuristic assessment. It only fails when ModeWeighted cannot
// load the trainer's availability or ratings.
func (h *Heuristic) Score(ctx context.Context, req *models.Requirement, trainer models.Trainer) (matching.Assessment, error) {
	if h.mode == ModeSkills {
		return matching.Assessment{
			Score:       signals.TagOverlap(req.Tags, trainer.Skills),
			Explanation: SkillsExplanation,
			Strategy:    matching.StrategySkillsHeuristic,
		}, nil
	}

	b, err := h.breakdown(ctx, req, trainer)
	if err != nil {
		return matching.Assessment{}, err
	}

	w := h.weights
	score := b.Tags*w.Tags + b.Geo*w.Geo + b.Budget*w.Budget + b.Availability*w.Availability + b.Rating*w.Rating

	return matching.Assessment{
		Score: score,
		Explanation: fmt.Sprintf("%s (skills %.2f, distance %.2f, budget %.2f, availability %.2f, rating %.2f)",
			WeightedExplanation, b.Tags, b.Geo, b.Budget, b.Availability, b.Rating),
		Strategy: matching.StrategyWeightedHeuristic,
	}, nil
}

func (h *Heuristic) breakdown(ctx context.Context, req *models.Requirement, trainer models.Trainer) (Breakdown, error) {
	b := Breakdown{
		Tags:         signals.TagOverlap(req.Tags, trainer.Skills),
		Geo:          signals.GeoScore(req.Location, trainer.Latitude, trainer.Longitude),
		Budget:       signals.BudgetFit(req.BudgetMin, req.BudgetMax, trainer.HourlyRate),
		Availability: signals.Neutral,
		Rating:       signals.Neutral,
	}
	if h.source == nil {
		return b, nil
	}

	if req.StartDate != nil && req.EndDate != nil && req.EndDate.After(*req.StartDate) {
		records, err := h.source.AvailabilityBetween(ctx, trainer.ID, *req.StartDate, *req.EndDate)
		if err != nil {
			return Breakdown{}, fmt.Errorf("load availability for trainer %s: %w", trainer.ID, err)
		}
		b.Availability = signals.AvailabilityCoverage(req.StartDate, req.EndDate, records)
	}

	ratings, err := h.source.Ratings(ctx, trainer.ID)
	if err != nil {
		return Breakdown{}, fmt.Errorf("load ratings for trainer %s: %w", trainer.ID, err)
	}
	b.Rating = signals.RatingWeight(ratings)

	return b, nil
}
