package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	apperrors "trainer-match-workers/internal/common/errors"
)

// MatchStatus is the closed set of states a match result can be in.
type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "PENDING"
	MatchStatusAccepted MatchStatus = "ACCEPTED"
	MatchStatusRejected MatchStatus = "REJECTED"
)

// ParseMatchStatus validates a raw status string. Unknown values yield an
// INVALID_MATCH_STATUS error.
func ParseMatchStatus(raw string) (MatchStatus, error) {
	switch s := MatchStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case MatchStatusPending, MatchStatusAccepted, MatchStatusRejected:
		return s, nil
	default:
		return "", apperrors.NewInvalidMatchStatusError(raw)
	}
}

func (s MatchStatus) String() string { return string(s) }

// Scan implements sql.Scanner so unknown database values are rejected on read.
func (s *MatchStatus) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return apperrors.NewInvalidMatchStatusError("")
	default:
		return apperrors.NewInvalidMatchStatusError(fmt.Sprintf("%v", v))
	}
	parsed, err := ParseMatchStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer.
func (s MatchStatus) Value() (driver.Value, error) {
	if _, err := ParseMatchStatus(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

// MatchResult is the persisted outcome for one (requirement, trainer) pair.
type MatchResult struct {
	ID            string      `json:"id"`
	RequirementID string      `json:"requirementId"`
	TrainerID     string      `json:"trainerId"`
	Score         float64     `json:"score"`
	Explanation   string      `json:"explanation"`
	Status        MatchStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
