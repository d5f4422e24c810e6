// Package matching defines the collaborator contracts and shared result types of
// the trainer matching engine. The engine itself lives in the scoring, ranking,
// persist and notify subpackages.
package matching

import (
	"context"
	"errors"
	"time"

	"trainer-match-workers/internal/models"
)

// DefaultTopK is the shortlist length used when callers pass k <= 0.
const DefaultTopK = 5

var (
	// ErrRequirementNotFound is returned by RequirementStore for unknown ids.
	ErrRequirementNotFound = errors.New("requirement not found")
)

// Strategy names the scorer that produced an Assessment.
type Strategy string

const (
	StrategyIntelligence      Strategy = "intelligence"
	StrategySkillsHeuristic   Strategy = "skills_heuristic"
	StrategyWeightedHeuristic Strategy = "weighted_heuristic"
)

// Verdict is what an external intelligence scorer returns. Scores outside [0,1]
// are treated as failures by the caller.
type Verdict struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// Assessment is the final, rounded score for one trainer against one requirement.
type Assessment struct {
	Score       float64  `json:"score"`
	Explanation string   `json:"explanation"`
	Strategy    Strategy `json:"strategy"`
}

// RankedCandidate is one entry of a shortlist.
type RankedCandidate struct {
	Trainer    models.Trainer `json:"trainer"`
	Assessment Assessment     `json:"assessment"`
}

// Ranking is the outcome of one ranking pass.
type Ranking struct {
	Requirement *models.Requirement
	Candidates  []RankedCandidate
	PoolSize    int
	Dropped     []CandidateFailure
}

// CandidateFailure records a trainer excluded from a pass because scoring failed.
type CandidateFailure struct {
	TrainerID string
	Err       error
}

// RequirementStore loads requirements by id.
type RequirementStore interface {
	GetRequirement(ctx context.Context, id string) (*models.Requirement, error)
}

// TrainerPool returns the full candidate pool in a stable order.
type TrainerPool interface {
	ListTrainers(ctx context.Context) ([]models.Trainer, error)
}

// SignalSource supplies the per-trainer records the heuristic needs.
type SignalSource interface {
	AvailabilityBetween(ctx context.Context, trainerID string, start, end time.Time) ([]models.AvailabilityRecord, error)
	Ratings(ctx context.Context, trainerID string) ([]models.RatingRecord, error)
}

// IntelligenceScorer is the primary, fallible scorer. Contexts are plain-text
// renderings of the requirement and the trainer.
type IntelligenceScorer interface {
	Score(ctx context.Context, requirementContext, candidateContext string) (Verdict, error)
}

// UpsertOutcome tells whether UpsertPair created or updated the row.
type UpsertOutcome string

const (
	UpsertCreated UpsertOutcome = "created"
	UpsertUpdated UpsertOutcome = "updated"
)

// MatchResultStore persists match results keyed by (requirementID, trainerID).
type MatchResultStore interface {
	// UpsertPair updates score and explanation of an existing row or inserts a
	// PENDING one, atomically for that pair.
	UpsertPair(ctx context.Context, requirementID, trainerID string, score float64, explanation string) (models.MatchResult, UpsertOutcome, error)
	ListByRequirement(ctx context.Context, requirementID string) ([]models.MatchResult, error)
	// PruneStale deletes PENDING rows of the requirement whose trainer is not in keep.
	PruneStale(ctx context.Context, requirementID string, keep []string) (int64, error)
}

// Notifier delivers a notification on every channel the trainer has.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) (models.Delivery, error)
}
