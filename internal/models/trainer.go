package models

import "time"

// Trainer is a candidate evaluated against requirements.
type Trainer struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Skills     []string `json:"skills"`
	HourlyRate *float64 `json:"hourlyRate,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Email      *string  `json:"email,omitempty"`
	Phone      *string  `json:"phone,omitempty"`
}

// HasContact reports whether at least one notification channel is on file.
func (t Trainer) HasContact() bool {
	return (t.Email != nil && *t.Email != "") || (t.Phone != nil && *t.Phone != "")
}

// AvailabilityRecord marks a trainer as available (or not) on one calendar day.
type AvailabilityRecord struct {
	TrainerID string    `json:"trainerId"`
	Date      time.Time `json:"date"`
	Available bool      `json:"available"`
}

// RatingRecord is one historical rating in [1,5].
type RatingRecord struct {
	TrainerID string  `json:"trainerId"`
	Score     float64 `json:"score"`
}
