// Package schedule picks posting times outside the configured quiet hours.
package schedule

import (
	"time"
)

// NextWindow returns the first time at or after now whose hour is not a
// quiet hour. Quiet hours are read in now's location.
func NextWindow(now time.Time, quietHours []int) time.Time {
	isQuiet := func(h int) bool {
		for _, q := range quietHours {
			if q == h {
				return true
			}
		}
		return false
	}
	for i := 0; i < 48; i++ { // search up to 2 days ahead
		cand := now.Add(time.Duration(i) * time.Hour)
		if !isQuiet(cand.Hour()) {
			return cand
		}
	}
	return now.Add(15 * time.Minute)
}

// Slots returns n posting times one hour apart or more, starting at the top
// of the hour after now and skipping quiet hours.
func Slots(now time.Time, n int, quietHours []int) []time.Time {
	out := make([]time.Time, 0, n)
	next := now.Truncate(time.Hour).Add(time.Hour)
	for i := 0; i < n; i++ {
		slot := NextWindow(next, quietHours)
		out = append(out, slot)
		next = slot.Add(time.Hour)
	}
	return out
}
