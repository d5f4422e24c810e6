package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"trainer-match-workers/internal/models"
)

// RequirementContext renders a requirement as the plain text handed to the
// intelligence scorer. The output is deterministic for equal inputs.
func RequirementContext(req *models.Requirement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Requirement: %s\n", orUnknown(req.Title))
	if req.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", req.Description)
	}
	fmt.Fprintf(&b, "Required skills: %s\n", joinSorted(req.Tags))
	fmt.Fprintf(&b, "Budget per hour: %s - %s\n", optFloat(req.BudgetMin), optFloat(req.BudgetMax))
	if req.Location != nil {
		fmt.Fprintf(&b, "Location: %s\n", *req.Location)
	} else {
		b.WriteString("Location: unknown\n")
	}
	fmt.Fprintf(&b, "Dates: %s to %s", optDate(req.StartDate), optDate(req.EndDate))
	return b.String()
}

// CandidateContext renders a trainer for the intelligence scorer. Contact
// details are left out.
func CandidateContext(t models.Trainer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trainer: %s\n", orUnknown(t.Name))
	fmt.Fprintf(&b, "Skills: %s\n", joinSorted(t.Skills))
	fmt.Fprintf(&b, "Hourly rate: %s\n", optFloat(t.HourlyRate))
	if t.Latitude != nil && t.Longitude != nil {
		fmt.Fprintf(&b, "Location: %.5f,%.5f", *t.Latitude, *t.Longitude)
	} else {
		b.WriteString("Location: unknown")
	}
	return b.String()
}

func joinSorted(tags []string) string {
	if len(tags) == 0 {
		return "none"
	}
	cp := append([]string(nil), tags...)
	sort.Strings(cp)
	return strings.Join(cp, ", ")
}

func optFloat(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.2f", *v)
}

func optDate(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
