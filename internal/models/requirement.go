package models

import "time"

// Requirement is a training-need posting. It is read once per ranking pass and never mutated.
type Requirement struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags"`
	BudgetMin   *float64   `json:"budgetMin,omitempty"`
	BudgetMax   *float64   `json:"budgetMax,omitempty"`
	Location    *string    `json:"location,omitempty"` // "lat,lng"
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
}
