package kpi

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Period is an inclusive date window.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Params returns the positional date parameters ($1, $2) every KPI query starts with.
func (p Period) Params() []any {
	return []any{p.Start, p.End}
}

// Days counts calendar days in the window, both ends included.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start)/day) + 1
}

// Periods pairs the requested window with the one it is compared against.
type Periods struct {
	Current  Period `json:"current"`
	Previous Period `json:"previous"`
}

// GetPeriods resolves the current window and the window immediately preceding it.
// The previous window starts one duration earlier and always ends the day before
// the current start.
func GetPeriods(start, end string) (Periods, error) {
	from, err := ParseDate(start)
	if err != nil {
		return Periods{}, fmt.Errorf("%w: start: %v", ErrInvalidRequest, err)
	}
	to, err := ParseDate(end)
	if err != nil {
		return Periods{}, fmt.Errorf("%w: end: %v", ErrInvalidRequest, err)
	}
	return previousOf(from, to), nil
}

func previousOf(start, end time.Time) Periods {
	duration := end.Sub(start)
	return Periods{
		Current: Period{Start: start, End: end},
		Previous: Period{
			Start: start.Add(-duration),
			End:   start.Add(-day),
		},
	}
}
