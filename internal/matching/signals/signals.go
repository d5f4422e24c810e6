// Package signals holds the pure sub-score calculators used by the heuristic scorer.
// Every calculator returns a value in [0,1] and never fails: missing data yields
// the neutral score, except TagOverlap which treats missing data as no match.
package signals

import (
	"math"
	"strconv"
	"strings"
	"time"

	"trainer-match-workers/internal/models"
)

const (
	// Neutral is returned when a signal has nothing to measure.
	Neutral = 0.5

	earthRadiusKm = 6371.0
	geoCutoffKm   = 100.0
	day           = 24 * time.Hour
)

// TagOverlap returns |a ∩ b| / max(|a|, |b|) over case-folded, de-duplicated tags.
// Either set being empty scores 0.
func TagOverlap(requirementTags, candidateTags []string) float64 {
	req := tagSet(requirementTags)
	cand := tagSet(candidateTags)
	if len(req) == 0 || len(cand) == 0 {
		return 0
	}

	shared := 0
	for tag := range req {
		if _, ok := cand[tag]; ok {
			shared++
		}
	}

	denom := len(req)
	if len(cand) > denom {
		denom = len(cand)
	}
	return float64(shared) / float64(denom)
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}

// GeoScore maps the great-circle distance between the requirement anchor ("lat,lng")
// and the candidate's coordinates to max(0, 1 - d/100km).
func GeoScore(anchor *string, lat, lng *float64) float64 {
	if anchor == nil || lat == nil || lng == nil {
		return Neutral
	}
	aLat, aLng, ok := ParseAnchor(*anchor)
	if !ok || !validCoordinate(*lat, *lng) {
		return Neutral
	}

	d := HaversineKm(aLat, aLng, *lat, *lng)
	return math.Max(0, 1-d/geoCutoffKm)
}

// ParseAnchor parses a "lat,lng" string. Surrounding whitespace is ignored.
func ParseAnchor(anchor string) (float64, float64, bool) {
	parts := strings.Split(anchor, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if !validCoordinate(lat, lng) {
		return 0, 0, false
	}
	return lat, lng, true
}

func validCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// HaversineKm returns the great-circle distance in kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// BudgetFit scores an hourly rate against an inclusive [min, max] budget.
// Outside the range the score falls with the relative distance to the nearest bound.
func BudgetFit(min, max, rate *float64) float64 {
	if min == nil || max == nil || rate == nil {
		return Neutral
	}
	lo, hi, r := *min, *max, *rate

	switch {
	case r >= lo && r <= hi:
		return 1.0
	case r < lo:
		if lo <= 0 {
			return 0
		}
		return math.Max(0, 1-(lo-r)/lo)
	default:
		if hi <= 0 {
			return 0
		}
		return math.Max(0, 1-(r-hi)/hi)
	}
}

// AvailabilityCoverage is the share of days in [start, end] on which the candidate
// is marked available. The window length is ceil((end-start)/24h) days.
func AvailabilityCoverage(start, end *time.Time, records []models.AvailabilityRecord) float64 {
	if start == nil || end == nil {
		return Neutral
	}
	window := end.Sub(*start)
	windowDays := math.Ceil(float64(window) / float64(day))
	if windowDays <= 0 {
		return Neutral
	}

	from := truncateDay(*start)
	to := truncateDay(*end)
	days := make(map[time.Time]struct{})
	for _, rec := range records {
		if !rec.Available {
			continue
		}
		d := truncateDay(rec.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		days[d] = struct{}{}
	}

	return math.Min(1, float64(len(days))/windowDays)
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// RatingWeight rescales the mean rating from [1,5] to [0,1].
func RatingWeight(ratings []models.RatingRecord) float64 {
	if len(ratings) == 0 {
		return Neutral
	}
	sum := 0.0
	for _, r := range ratings {
		sum += r.Score
	}
	mean := sum / float64(len(ratings))
	return Clamp01((mean - 1) / 4)
}

// Clamp01 bounds v to [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
