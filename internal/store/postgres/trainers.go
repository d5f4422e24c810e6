package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trainer-match-workers/internal/models"

	"github.com/lib/pq"
)

// TrainerStore serves the candidate pool and the per-trainer signal records.
type TrainerStore struct {
	db *sql.DB
}

func NewTrainerStore(db *sql.DB) *TrainerStore {
	return &TrainerStore{db: db}
}

// ListTrainers returns every trainer ordered by id, so ties rank the same way on every pass.
func (s *TrainerStore) ListTrainers(ctx context.Context) ([]models.Trainer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(skills, '{}'), hourly_rate, latitude, longitude, email, phone
		FROM trainers
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query trainers: %w", err)
	}
	defer rows.Close()

	trainers := []models.Trainer{}
	for rows.Next() {
		var (
			t              models.Trainer
			skills         pq.StringArray
			rate, lat, lng sql.NullFloat64
			email, phone   sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &skills, &rate, &lat, &lng, &email, &phone); err != nil {
			return nil, fmt.Errorf("scan trainer: %w", err)
		}
		t.Skills = []string(skills)
		t.HourlyRate = nullFloat(rate)
		t.Latitude = nullFloat(lat)
		t.Longitude = nullFloat(lng)
		t.Email = nullString(email)
		t.Phone = nullString(phone)
		trainers = append(trainers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trainers: %w", err)
	}
	return trainers, nil
}

// AvailabilityBetween returns the trainer's available days on the UTC calendar days from start to end.
func (s *TrainerStore) AvailabilityBetween(ctx context.Context, trainerID string, start, end time.Time) ([]models.AvailabilityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trainer_id, day, available
		FROM trainer_availability
		WHERE trainer_id = $1
		  AND day >= date_trunc('day', $2::timestamptz)
		  AND day < date_trunc('day', $3::timestamptz) + interval '1 day'
		  AND available
		ORDER BY day`, trainerID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query availability for %s: %w", trainerID, err)
	}
	defer rows.Close()

	var out []models.AvailabilityRecord
	for rows.Next() {
		var r models.AvailabilityRecord
		if err := rows.Scan(&r.TrainerID, &r.Date, &r.Available); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		r.Date = r.Date.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ratings returns every historical rating of the trainer.
func (s *TrainerStore) Ratings(ctx context.Context, trainerID string) ([]models.RatingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trainer_id, score
		FROM trainer_ratings
		WHERE trainer_id = $1`, trainerID)
	if err != nil {
		return nil, fmt.Errorf("query ratings for %s: %w", trainerID, err)
	}
	defer rows.Close()

	var out []models.RatingRecord
	for rows.Next() {
		var r models.RatingRecord
		if err := rows.Scan(&r.TrainerID, &r.Score); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
