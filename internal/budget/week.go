package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"DipSentinel/internal/model"
)

// WeekStart returns the Monday 00:00 UTC that opens the budget week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// SameWeek reports whether a and b fall in the same budget week.
func SameWeek(a, b time.Time) bool {
	return WeekStart(a).Equal(WeekStart(b))
}

// EnsureWeekRollover resets the spent counters when now is in a later week than state.WeekStart.
// Caps are left untouched. It returns true when the state changed.
func EnsureWeekRollover(state *model.BudgetState, now time.Time) bool {
	current := WeekStart(now)
	if state.WeekStart.Equal(current) {
		return false
	}
	state.WeekStart = current
	state.PlanSpent = decimal.Zero
	state.DipSpent = decimal.Zero
	return true
}
