// Package calendar maps availability slots onto day, week and month calendar
// windows and keeps the transient local copy a session renders from.
package calendar

import (
	"time"

	"github.com/google/uuid"

	"tutorly/backend/internal/domain"
)

const (
	TitleAvailable = "Available"
	TitleBooked    = "Booked"
)

type Event struct {
	ID              uuid.UUID
	Title           string
	Start           time.Time
	End             time.Time
	Status          domain.SlotStatus
	Comment         string
	DurationMinutes int
}

func EventFromSlot(s domain.AvailabilitySlot) Event {
	title := TitleAvailable
	if s.Status == domain.SlotStatusBooked {
		title = TitleBooked
	}
	return Event{
		ID:              s.ID,
		Title:           title,
		Start:           s.StartTime,
		End:             s.EndTime,
		Status:          s.Status,
		Comment:         s.Comment,
		DurationMinutes: int(s.Duration() / time.Minute),
	}
}
