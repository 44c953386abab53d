package live

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Spatial-NVR/constructor/internal/backend"
)

// Status ids with their own tab in the appeal list
const (
	StatusNew     = 1
	StatusPending = 2
	StatusClosed  = 3
)

// Filter narrows the appeal list. Zero values match everything.
type Filter struct {
	Search     string
	Severities []int
	From       time.Time
	To         time.Time
	// Status limits the displayed rows. It does not affect Counts.
	Status int
}

// Result is a filtered appeal list
type Result struct {
	Appeals []backend.Appeal `json:"appeals"`
	// Matched is the number of appeals passing every filter but Status
	Matched int         `json:"matched"`
	Counts  map[int]int `json:"counts"`
}

// Match reports whether a passes the search, severity and date filters
func (f Filter) Match(a backend.Appeal) bool {
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, a.SeverityID) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		ticket := a.TicketNumber
		if ticket == "" {
			ticket = a.ID.String()
		}
		if !strings.Contains(strings.ToLower(a.Location), q) &&
			!strings.Contains(strings.ToLower(a.Description), q) &&
			!strings.Contains(strings.ToLower(ticket), q) {
			return false
		}
	}
	if !f.From.IsZero() && a.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// Apply filters list. Counts are per status id over the matched appeals.
func (f Filter) Apply(list []backend.Appeal) Result {
	res := Result{Counts: make(map[int]int)}
	for _, a := range list {
		if !f.Match(a) {
			continue
		}
		res.Matched++
		res.Counts[a.StatusID]++
		if f.Status == 0 || a.StatusID == f.Status {
			res.Appeals = append(res.Appeals, a)
		}
	}
	return res
}

// ParseDay parses a YYYY-MM-DD bound in UTC. An end bound covers the
// whole day.
func ParseDay(s string, end bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
