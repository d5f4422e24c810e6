// Package notify alerts trainers whose persisted match clears the confidence threshold.
package notify

import (
	"context"
	"errors"

	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/common/metrics"
	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/matching/persist"
	"trainer-match-workers/internal/models"

	"github.com/google/uuid"
)

// DefaultThreshold is the score a match must strictly exceed to be notified.
const DefaultThreshold = 0.7

type Ranker interface {
	Rank(ctx context.Context, requirementID string, k int) (*matching.Ranking, error)
}

type Persister interface {
	Persist(ctx context.Context, requirementID string, ranked []matching.RankedCandidate) (*persist.PersistReport, error)
}

// Failure is a trainer whose notification was not delivered.
type Failure struct {
	TrainerID string
	Err       error
}

type Report struct {
	RequirementID    string
	NotifiedCount    int
	NotifiedContacts []string
	Attempted        int
	Skipped          int
	Failures         []Failure
	Persist          *persist.PersistReport
}

type Trigger struct {
	ranker    Ranker
	persister Persister
	notifier  matching.Notifier
	threshold float64
	topK      int
	logger    logger.Logger
}

// NewTrigger builds a Trigger. threshold <= 0 means DefaultThreshold and
// topK <= 0 means matching.DefaultTopK.
func NewTrigger(ranker Ranker, persister Persister, notifier matching.Notifier, threshold float64, topK int, log logger.Logger) *Trigger {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if topK <= 0 {
		topK = matching.DefaultTopK
	}
	return &Trigger{
		ranker:    ranker,
		persister: persister,
		notifier:  notifier,
		threshold: threshold,
		topK:      topK,
		logger:    logger.ForComponent(log, "notification-trigger"),
	}
}

// NotifyTopMatches re-ranks the requirement, persists the shortlist and
// notifies every persisted match scoring above the threshold. Delivery
// failures are logged and skipped; only successful deliveries are counted.
func (t *Trigger) NotifyTopMatches(ctx context.Context, requirementID string) (*Report, error) {
	ranking, err := t.ranker.Rank(ctx, requirementID, t.topK)
	if err != nil {
		return nil, err
	}

	persisted, err := t.persister.Persist(ctx, requirementID, ranking.Candidates)
	if err != nil {
		return nil, err
	}

	byTrainer := make(map[string]models.Trainer, len(ranking.Candidates))
	for _, c := range ranking.Candidates {
		byTrainer[c.Trainer.ID] = c.Trainer
	}

	report := &Report{
		RequirementID:    requirementID,
		NotifiedContacts: []string{},
		Persist:          persisted,
	}
	title := ""
	if ranking.Requirement != nil {
		title = ranking.Requirement.Title
	}

	for _, result := range persisted.Persisted {
		if result.Score <= t.threshold {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++

		trainer := byTrainer[result.TrainerID]
		if !trainer.HasContact() {
			report.Skipped++
			metrics.NotificationsSent.WithLabelValues("skipped").Inc()
			t.logger.Warn("trainer has no contact channel, skipping", map[string]interface{}{
				"requirementId": requirementID,
				"trainerId":     result.TrainerID,
			})
			continue
		}

		delivery, err := t.notifier.Notify(ctx, models.Notification{
			ID:            uuid.NewString(),
			RequirementID: requirementID,
			Requirement:   title,
			TrainerID:     trainer.ID,
			TrainerName:   trainer.Name,
			Email:         trainer.Email,
			Phone:         trainer.Phone,
			Score:         result.Score,
			Explanation:   result.Explanation,
		})
		if err != nil {
			outcome := "failed"
			if errors.Is(err, ErrNoChannel) {
				outcome = "skipped"
				report.Skipped++
			}
			metrics.NotificationsSent.WithLabelValues(outcome).Inc()
			t.logger.Warn("notification not delivered", map[string]interface{}{
				"requirementId": requirementID,
				"trainerId":     trainer.ID,
				"error":         err.Error(),
			})
			report.Failures = append(report.Failures, Failure{TrainerID: trainer.ID, Err: err})
			continue
		}

		metrics.NotificationsSent.WithLabelValues("sent").Inc()
		report.NotifiedCount++
		report.NotifiedContacts = append(report.NotifiedContacts, delivery.Contacts...)
	}

	t.logger.Info("top matches notified", map[string]interface{}{
		"requirementId": requirementID,
		"attempted":     report.Attempted,
		"notified":      report.NotifiedCount,
		"failed":        len(report.Failures),
	})
	return report, nil
}
