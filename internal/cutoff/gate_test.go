package cutoff

import (
	"testing"
	"time"

	"residence-dining/internal/order"
)

func TestGateState(t *testing.T) {
	gate := NewGate(map[order.MealPeriod]int{
		order.Breakfast: 10,
		order.Lunch:     14,
		order.Dinner:    18,
	}, time.UTC)

	now := time.Date(2026, 10, 15, 10, 1, 0, 0, time.UTC)

	tests := []struct {
		name   string
		period order.MealPeriod
		date   string
		now    time.Time
		want   State
	}{
		{"BreakfastAfterCutoffToday", order.Breakfast, "2026-10-15", now, Locked},
		{"BreakfastExactlyAtCutoff", order.Breakfast, "2026-10-15", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC), Locked},
		{"BreakfastBeforeCutoff", order.Breakfast, "2026-10-15", time.Date(2026, 10, 15, 9, 59, 0, 0, time.UTC), Editable},
		{"LunchStillOpen", order.Lunch, "2026-10-15", now, Editable},
		{"TomorrowAlwaysEditable", order.Breakfast, "2026-10-16", time.Date(2026, 10, 15, 23, 59, 0, 0, time.UTC), Editable},
		{"YesterdayHistorical", order.Dinner, "2026-10-14", time.Date(2026, 10, 15, 0, 1, 0, 0, time.UTC), Historical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gate.State(tt.period, tt.date, tt.now)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("InvalidDate", func(t *testing.T) {
		if _, err := gate.State(order.Lunch, "15/10/2026", now); err == nil {
			t.Fatal("Expected an error for a malformed date, got nil")
		}
		if gate.Editable(order.Lunch, "15/10/2026", now) {
			t.Error("Expected malformed date to be non-editable")
		}
	})

	t.Run("UsesGateLocation", func(t *testing.T) {
		loc := time.FixedZone("UTC-5", -5*3600)
		local := NewGate(map[order.MealPeriod]int{order.Breakfast: 10}, loc)
		// 14:30 UTC is 09:30 at UTC-5.
		at := time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)
		if !local.Editable(order.Breakfast, "2026-10-15", at) {
			t.Error("Expected breakfast to be editable at 09:30 local time")
		}
		if local.Today(at) != "2026-10-15" {
			t.Errorf("Expected today to be 2026-10-15, got %s", local.Today(at))
		}
	})

	t.Run("States", func(t *testing.T) {
		states, err := gate.States("2026-10-15", now)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if states[order.Breakfast] != Locked || states[order.Lunch] != Editable || states[order.Dinner] != Editable {
			t.Errorf("Unexpected states %v", states)
		}
	})
}
