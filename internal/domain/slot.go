package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
)

func (s SlotStatus) Valid() bool {
	return s == SlotStatusAvailable || s == SlotStatusBooked
}

var ErrInvalidSlotRange = errors.New("slot end_time must be after start_time")

// AvailabilitySlot is a time range a tutor can be booked for. Status changes
// only through conditional updates on the expected prior status.
type AvailabilitySlot struct {
	bun.BaseModel `bun:"table:availability_slots"`

	ID        uuid.UUID  `bun:"id,pk,type:uuid"`
	TutorID   string     `bun:"tutor_id,notnull"`
	StartTime time.Time  `bun:"start_time,notnull"`
	EndTime   time.Time  `bun:"end_time,notnull"`
	Status    SlotStatus `bun:"status,notnull"`
	Comment   string     `bun:"comment,nullzero"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
	UpdatedAt time.Time  `bun:"updated_at,notnull"`
}

func (s AvailabilitySlot) Validate() error {
	if !s.EndTime.After(s.StartTime) {
		return ErrInvalidSlotRange
	}
	return nil
}

func (s AvailabilitySlot) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Overlaps reports whether the half-open ranges [start, end) intersect.
func (s AvailabilitySlot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && s.EndTime.After(start)
}

func (s *AvailabilitySlot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.Status == "" {
			s.Status = SlotStatusAvailable
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}
