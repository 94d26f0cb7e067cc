package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tutorly/backend/internal/domain"
)

type Mode string

const (
	ModeDay   Mode = "day"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDay, ModeWeek, ModeMonth:
		return m, nil
	case "":
		return ModeWeek, nil
	default:
		return "", fmt.Errorf("unknown calendar mode %q", s)
	}
}

// Window returns the half-open range [start, end) shown for anchor in loc.
// Weeks start on Monday; a month covers whole weeks, from the Monday on or
// before the 1st to the Monday after the last day.
func Window(mode Mode, anchor time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	a := anchor.In(loc)
	day := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, loc)

	switch mode {
	case ModeDay:
		return day, day.AddDate(0, 0, 1), nil
	case ModeWeek:
		start := mondayOnOrBefore(day)
		return start, start.AddDate(0, 0, 7), nil
	case ModeMonth:
		first := time.Date(a.Year(), a.Month(), 1, 0, 0, 0, 0, loc)
		last := first.AddDate(0, 1, -1)
		return mondayOnOrBefore(first), mondayOnOrBefore(last).AddDate(0, 0, 7), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown calendar mode %q", mode)
	}
}

func mondayOnOrBefore(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Events returns the slots overlapping the window as events ordered by start.
func Events(slots []domain.AvailabilitySlot, mode Mode, anchor time.Time, loc *time.Location) ([]Event, error) {
	start, end, err := Window(mode, anchor, loc)
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(slots))
	for _, s := range slots {
		if s.Overlaps(start, end) {
			out = append(out, EventFromSlot(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
