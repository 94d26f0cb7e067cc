package domain

import (
	"testing"
	"time"
)

func TestExpandWeekly_Validation(t *testing.T) {
	base := WeeklyRule{
		StartTime: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		ByWeekday: []int16{1},
		Weeks:     1,
		Timezone:  "UTC",
	}

	tests := []struct {
		name    string
		rule    WeeklyRule
		wantErr string
	}{
		{
			name: "end before start",
			rule: func() WeeklyRule {
				r := base
				r.EndTime = r.StartTime.Add(-time.Minute)
				return r
			}(),
			wantErr: ErrInvalidSlotRange.Error(),
		},
		{
			name: "duration too long",
			rule: func() WeeklyRule {
				r := base
				r.EndTime = r.StartTime.Add(25 * time.Hour)
				return r
			}(),
			wantErr: "duration too long",
		},
		{
			name: "zero weeks",
			rule: func() WeeklyRule {
				r := base
				r.Weeks = 0
				return r
			}(),
			wantErr: "weeks must be between 1 and 52",
		},
		{
			name: "too many weeks",
			rule: func() WeeklyRule {
				r := base
				r.Weeks = 53
				return r
			}(),
			wantErr: "weeks must be between 1 and 52",
		},
		{
			name: "invalid time zone",
			rule: func() WeeklyRule {
				r := base
				r.Timezone = "Not/AZone"
				return r
			}(),
			wantErr: "invalid time_zone",
		},
		{
			name: "invalid weekday",
			rule: func() WeeklyRule {
				r := base
				r.ByWeekday = []int16{0}
				return r
			}(),
			wantErr: "invalid weekday",
		},
		{
			name: "empty weekday set",
			rule: func() WeeklyRule {
				r := base
				r.ByWeekday = nil
				return r
			}(),
			wantErr: "at least one weekday is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExpandWeekly(tt.rule)
			if err == nil {
				t.Fatalf("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestExpandWeekly_SelectedWeekdaysSorted(t *testing.T) {
	ranges, err := ExpandWeekly(WeeklyRule{
		StartTime: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		ByWeekday: []int16{3, 1, 3},
		Weeks:     2,
		Timezone:  "UTC",
	})
	if err != nil {
		t.Fatalf("ExpandWeekly error: %v", err)
	}

	want := []time.Time{
		time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC),
	}
	if len(ranges) != len(want) {
		t.Fatalf("len(ranges) = %d, want %d", len(ranges), len(want))
	}
	for i, r := range ranges {
		if !r.StartTime.Equal(want[i]) {
			t.Fatalf("ranges[%d].StartTime = %v, want %v", i, r.StartTime, want[i])
		}
		if r.EndTime.Sub(r.StartTime) != time.Hour {
			t.Fatalf("ranges[%d] duration = %v, want 1h", i, r.EndTime.Sub(r.StartTime))
		}
	}
}

func TestExpandWeekly_StartsFromTemplateDate(t *testing.T) {
	// Wednesday template, Monday only: the first Monday is the following week.
	ranges, err := ExpandWeekly(WeeklyRule{
		StartTime: time.Date(2026, 1, 7, 14, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC),
		ByWeekday: []int16{1},
		Weeks:     1,
		Timezone:  "UTC",
	})
	if err != nil {
		t.Fatalf("ExpandWeekly error: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("len(ranges) = %d, want 1", len(ranges))
	}
	if want := time.Date(2026, 1, 12, 14, 0, 0, 0, time.UTC); !ranges[0].StartTime.Equal(want) {
		t.Fatalf("start = %v, want %v", ranges[0].StartTime, want)
	}
}

func TestExpandWeekly_DSTMaintainsLocalHour(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}

	ranges, err := ExpandWeekly(WeeklyRule{
		StartTime: time.Date(2026, 3, 1, 9, 0, 0, 0, loc),
		EndTime:   time.Date(2026, 3, 1, 10, 0, 0, 0, loc),
		ByWeekday: []int16{7},
		Weeks:     3,
		Timezone:  "America/New_York",
	})
	if err != nil {
		t.Fatalf("ExpandWeekly error: %v", err)
	}
	if len(ranges) != 3 {
		t.Fatalf("len(ranges) = %d, want 3", len(ranges))
	}
	for _, r := range ranges {
		if r.StartTime.In(loc).Hour() != 9 {
			t.Fatalf("local hour = %d, want 9 (start_time=%v)", r.StartTime.In(loc).Hour(), r.StartTime)
		}
		if r.StartTime.Location() != time.UTC {
			t.Fatalf("expected UTC start, got %v", r.StartTime.Location())
		}
		if !r.StartTime.Before(r.EndTime) {
			t.Fatalf("start_time must be before end_time: %v %v", r.StartTime, r.EndTime)
		}
	}
}

func TestExpandWeekly_CrossesMidnight(t *testing.T) {
	ranges, err := ExpandWeekly(WeeklyRule{
		StartTime: time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 1, 6, 1, 0, 0, 0, time.UTC),
		ByWeekday: []int16{1},
		Weeks:     2,
		Timezone:  "UTC",
	})
	if err != nil {
		t.Fatalf("ExpandWeekly error: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("len(ranges) = %d, want 2", len(ranges))
	}
	for _, r := range ranges {
		if r.EndTime.Sub(r.StartTime) != 2*time.Hour {
			t.Fatalf("duration = %v, want 2h", r.EndTime.Sub(r.StartTime))
		}
	}
}
