// Package postgres implements the matching collaborators on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/models"

	"github.com/lib/pq"
)

// RequirementStore reads training requirements.
type RequirementStore struct {
	db *sql.DB
}

func NewRequirementStore(db *sql.DB) *RequirementStore {
	return &RequirementStore{db: db}
}

const selectRequirement = `
	SELECT id, title, COALESCE(description, ''), COALESCE(tags, '{}'), budget_min, budget_max,
	       location, start_date, end_date
	FROM requirements
	WHERE id = $1`

func (s *RequirementStore) GetRequirement(ctx context.Context, id string) (*models.Requirement, error) {
	var (
		req                  models.Requirement
		tags                 pq.StringArray
		budgetMin, budgetMax sql.NullFloat64
		location             sql.NullString
		start, end           sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, selectRequirement, id).Scan(
		&req.ID, &req.Title, &req.Description, &tags, &budgetMin, &budgetMax,
		&location, &start, &end,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("requirement %s: %w", id, matching.ErrRequirementNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query requirement %s: %w", id, err)
	}

	req.Tags = []string(tags)
	req.BudgetMin = nullFloat(budgetMin)
	req.BudgetMax = nullFloat(budgetMax)
	req.Location = nullString(location)
	req.StartDate = nullTime(start)
	req.EndDate = nullTime(end)
	return &req, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
