package domain

import (
	"errors"
	"sort"
	"time"
)

const MaxRecurringWeeks = 52

// WeeklyRule expands one template slot into the same local wall-clock range on
// the selected ISO weekdays (1=Monday .. 7=Sunday) for a number of weeks,
// counted from the template's local date.
type WeeklyRule struct {
	StartTime time.Time
	EndTime   time.Time
	ByWeekday []int16
	Weeks     int
	Timezone  string
}

type TimeRange struct {
	StartTime time.Time
	EndTime   time.Time
}

func ExpandWeekly(rule WeeklyRule) ([]TimeRange, error) {
	if !rule.EndTime.After(rule.StartTime) {
		return nil, ErrInvalidSlotRange
	}
	if rule.EndTime.Sub(rule.StartTime) > 24*time.Hour {
		return nil, errors.New("duration too long")
	}
	if rule.Weeks < 1 || rule.Weeks > MaxRecurringWeeks {
		return nil, errors.New("weeks must be between 1 and 52")
	}

	loc, err := time.LoadLocation(rule.Timezone)
	if err != nil {
		return nil, errors.New("invalid time_zone")
	}

	selected := make(map[int16]struct{}, len(rule.ByWeekday))
	for _, wd := range rule.ByWeekday {
		if wd < 1 || wd > 7 {
			return nil, errors.New("invalid weekday")
		}
		selected[wd] = struct{}{}
	}
	if len(selected) == 0 {
		return nil, errors.New("at least one weekday is required")
	}

	startLocal := rule.StartTime.In(loc)
	endLocal := rule.EndTime.In(loc)
	dayOffset := int(dateUTC(endLocal).Sub(dateUTC(startLocal)) / (24 * time.Hour))

	firstDay := dateUTC(startLocal)
	out := make([]TimeRange, 0, rule.Weeks*len(selected))

	for i := 0; i < rule.Weeks*7; i++ {
		day := firstDay.AddDate(0, 0, i)
		if _, ok := selected[isoWeekday(day.Weekday())]; !ok {
			continue
		}

		s := time.Date(day.Year(), day.Month(), day.Day(),
			startLocal.Hour(), startLocal.Minute(), startLocal.Second(), startLocal.Nanosecond(), loc)
		endDay := day.AddDate(0, 0, dayOffset)
		e := time.Date(endDay.Year(), endDay.Month(), endDay.Day(),
			endLocal.Hour(), endLocal.Minute(), endLocal.Second(), endLocal.Nanosecond(), loc)
		if !e.After(s) {
			continue
		}

		out = append(out, TimeRange{StartTime: s.UTC(), EndTime: e.UTC()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func isoWeekday(wd time.Weekday) int16 {
	if wd == time.Sunday {
		return 7
	}
	return int16(wd)
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
