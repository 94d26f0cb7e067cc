package calendar

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"tutorly/backend/internal/domain"
)

func TestWindow(t *testing.T) {
	anchor := time.Date(2026, 1, 14, 15, 30, 0, 0, time.UTC) // Wednesday

	tests := []struct {
		name      string
		mode      Mode
		anchor    time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "day",
			mode:      ModeDay,
			anchor:    anchor,
			wantStart: time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "week starts monday",
			mode:      ModeWeek,
			anchor:    anchor,
			wantStart: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "week anchored on sunday",
			mode:      ModeWeek,
			anchor:    time.Date(2026, 1, 18, 23, 0, 0, 0, time.UTC),
			wantStart: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "month grid",
			mode:      ModeMonth,
			anchor:    anchor,
			wantStart: time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "month starting on monday",
			mode:      ModeMonth,
			anchor:    time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := Window(tt.mode, tt.anchor, time.UTC)
			if err != nil {
				t.Fatalf("Window error: %v", err)
			}
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Fatalf("Window = [%v, %v), want [%v, %v)", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestWindowUsesLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}

	// 2026-03-08 is the spring-forward day: 23 hours long.
	start, end, err := Window(ModeDay, time.Date(2026, 3, 8, 16, 0, 0, 0, time.UTC), loc)
	if err != nil {
		t.Fatalf("Window error: %v", err)
	}
	if start.In(loc).Hour() != 0 || end.In(loc).Hour() != 0 {
		t.Fatalf("window not aligned to local midnight: %v %v", start, end)
	}
	if got := end.Sub(start); got != 23*time.Hour {
		t.Fatalf("day length = %v, want 23h", got)
	}
}

func TestWindowUnknownMode(t *testing.T) {
	if _, _, err := Window(Mode("year"), time.Now(), time.UTC); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeWeek, "Day": ModeDay, " month ": ModeMonth, "week": ModeWeek} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("agenda"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestEventsFiltersAndOrders(t *testing.T) {
	base := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	slots := []domain.AvailabilitySlot{
		{ID: uuid.New(), TutorID: "t1", StartTime: base.Add(48 * time.Hour), EndTime: base.Add(49 * time.Hour), Status: domain.SlotStatusBooked},
		{ID: uuid.New(), TutorID: "t1", StartTime: base, EndTime: base.Add(90 * time.Minute), Status: domain.SlotStatusAvailable, Comment: "intro"},
		{ID: uuid.New(), TutorID: "t1", StartTime: base.Add(8 * 24 * time.Hour), EndTime: base.Add(8*24*time.Hour + time.Hour), Status: domain.SlotStatusAvailable},
	}

	events, err := Events(slots, ModeWeek, base, time.UTC)
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}

	first := events[0]
	if first.ID != slots[1].ID || first.Title != TitleAvailable || first.DurationMinutes != 90 || first.Comment != "intro" {
		t.Fatalf("first event = %+v", first)
	}
	if events[1].Title != TitleBooked {
		t.Fatalf("second title = %q, want %q", events[1].Title, TitleBooked)
	}
}
