package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trainer-match-workers/internal/common/database"
	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// MatchResultStore persists match_results rows, unique on (requirement_id, trainer_id).
type MatchResultStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMatchResultStore(db *sql.DB) *MatchResultStore {
	return &MatchResultStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// UpsertPair locks the existing row (if any) and either updates score and
// explanation in place or inserts a new PENDING row, in one transaction. An
// insert that loses a race on the (requirement_id, trainer_id) key becomes an update.
func (s *MatchResultStore) UpsertPair(ctx context.Context, requirementID, trainerID string, score float64, explanation string) (models.MatchResult, matching.UpsertOutcome, error) {
	result := models.MatchResult{
		RequirementID: requirementID,
		TrainerID:     trainerID,
		Score:         score,
		Explanation:   explanation,
	}
	var outcome matching.UpsertOutcome
	now := s.now()

	err := database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT id, status, created_at
			FROM match_results
			WHERE requirement_id = $1 AND trainer_id = $2
			FOR UPDATE`, requirementID, trainerID,
		).Scan(&result.ID, &result.Status, &result.CreatedAt)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			// another replica may insert the pair between the lookup and here
			var inserted bool
			err = tx.QueryRowContext(ctx, `
				INSERT INTO match_results (id, requirement_id, trainer_id, score, explanation, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (requirement_id, trainer_id) DO UPDATE
				SET score = EXCLUDED.score, explanation = EXCLUDED.explanation, updated_at = EXCLUDED.updated_at
				RETURNING id, status, created_at, (xmax = 0) AS inserted`,
				uuid.NewString(), requirementID, trainerID, score, explanation, string(models.MatchStatusPending), now, now,
			).Scan(&result.ID, &result.Status, &result.CreatedAt, &inserted)
			if err != nil {
				return fmt.Errorf("insert match result: %w", err)
			}
			result.UpdatedAt = now
			outcome = matching.UpsertUpdated
			if inserted {
				outcome = matching.UpsertCreated
			}
			return nil

		case err != nil:
			return fmt.Errorf("lock match result: %w", err)

		default:
			result.UpdatedAt = now
			outcome = matching.UpsertUpdated
			_, err = tx.ExecContext(ctx, `
				UPDATE match_results
				SET score = $1, explanation = $2, updated_at = $3
				WHERE id = $4`, score, explanation, now, result.ID)
			if err != nil {
				return fmt.Errorf("update match result: %w", err)
			}
			return nil
		}
	})
	if err != nil {
		return models.MatchResult{}, "", err
	}
	return result, outcome, nil
}

// ListByRequirement returns the requirement's rows, best score first.
func (s *MatchResultStore) ListByRequirement(ctx context.Context, requirementID string) ([]models.MatchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, requirement_id, trainer_id, score, COALESCE(explanation, ''), status, created_at, updated_at
		FROM match_results
		WHERE requirement_id = $1
		ORDER BY score DESC, trainer_id`, requirementID)
	if err != nil {
		return nil, fmt.Errorf("query match results: %w", err)
	}
	defer rows.Close()

	out := []models.MatchResult{}
	for rows.Next() {
		var r models.MatchResult
		if err := rows.Scan(&r.ID, &r.RequirementID, &r.TrainerID, &r.Score, &r.Explanation, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan match result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneStale deletes PENDING rows whose trainer is not in keep. Other statuses are never touched.
func (s *MatchResultStore) PruneStale(ctx context.Context, requirementID string, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM match_results
		WHERE requirement_id = $1 AND status = $2 AND NOT (trainer_id = ANY($3))`,
		requirementID, string(models.MatchStatusPending), pq.Array(keep))
	if err != nil {
		return 0, fmt.Errorf("prune match results: %w", err)
	}
	return res.RowsAffected()
}
