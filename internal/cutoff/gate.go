// Package cutoff decides whether a meal period can still be ordered.
package cutoff

import (
	"fmt"
	"time"

	"residence-dining/internal/order"
)

// DateLayout is the ISO date format used for selected dates.
const DateLayout = "2006-01-02"

// State is the ordering state of one meal period on one date.
type State int

const (
	Editable State = iota
	Locked
	Historical
)

func (s State) String() string {
	switch s {
	case Editable:
		return "editable"
	case Locked:
		return "locked"
	case Historical:
		return "historical"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Gate holds the cutoff hour of each meal period. It keeps no memory; every
// call recomputes the state from the clock and the selected date.
type Gate struct {
	cutoffs map[order.MealPeriod]int
	loc     *time.Location
}

// NewGate creates a Gate. A nil location means time.Local.
func NewGate(hours map[order.MealPeriod]int, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.Local
	}
	cutoffs := make(map[order.MealPeriod]int, len(hours))
	for p, h := range hours {
		cutoffs[p] = h
	}
	return &Gate{cutoffs: cutoffs, loc: loc}
}

// State returns the state of period on the ISO date, as seen at now.
func (g *Gate) State(period order.MealPeriod, date string, now time.Time) (State, error) {
	day, err := time.ParseInLocation(DateLayout, date, g.loc)
	if err != nil {
		return Locked, fmt.Errorf("invalid date %q: %w", date, err)
	}

	now = now.In(g.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.loc)

	switch {
	case day.Before(today):
		return Historical, nil
	case day.After(today):
		return Editable, nil
	}

	hour, ok := g.cutoffs[period]
	if !ok || now.Hour() < hour {
		return Editable, nil
	}
	return Locked, nil
}

// Editable reports whether quantities for period on date may still change.
func (g *Gate) Editable(period order.MealPeriod, date string, now time.Time) bool {
	s, err := g.State(period, date, now)
	return err == nil && s == Editable
}

// States returns the state of every meal period on date.
func (g *Gate) States(date string, now time.Time) (map[order.MealPeriod]State, error) {
	out := make(map[order.MealPeriod]State, len(order.Periods))
	for _, p := range order.Periods {
		s, err := g.State(p, date, now)
		if err != nil {
			return nil, err
		}
		out[p] = s
	}
	return out, nil
}

// Today returns the ISO date of now in the gate's location.
func (g *Gate) Today(now time.Time) string {
	return now.In(g.loc).Format(DateLayout)
}
