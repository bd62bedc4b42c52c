package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

// Recency windows derived from a subscription schedule. A monthly recurrence
// searches one month back, weekly one week, anything else one day.
const (
	WindowDaily   = 24 * time.Hour
	WindowWeekly  = 7 * 24 * time.Hour
	WindowMonthly = 30 * 24 * time.Hour
)

// ResearchWindow computes the published-date window for source search from a
// five-field cron schedule. The schedule drives the window only; the pipeline
// never interprets it as a timer.
func ResearchWindow(schedule string, now time.Time) (start, end time.Time, err error) {
	if _, err := cronexpr.Parse(schedule); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	fields := strings.Fields(schedule)
	if len(fields) < 5 {
		return time.Time{}, time.Time{}, fmt.Errorf("schedule %q: expected 5 cron fields", schedule)
	}
	dayOfMonth, dayOfWeek := fields[2], fields[4]

	window := WindowDaily
	switch {
	case restricted(dayOfMonth):
		window = WindowMonthly
	case restricted(dayOfWeek):
		window = WindowWeekly
	}
	return now.Add(-window), now, nil
}

// restricted reports whether a cron field constrains the run to specific
// values rather than firing on every value.
func restricted(field string) bool {
	return field != "*" && !strings.HasPrefix(field, "*/")
}
