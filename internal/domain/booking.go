package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
)

// Booking records a student's claim on exactly one AvailabilitySlot. It is
// written only after the slot was flipped to booked by the same attempt.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID        uuid.UUID     `bun:"id,pk,type:uuid"`
	StudentID string        `bun:"student_id,notnull"`
	TutorID   string        `bun:"tutor_id,notnull"`
	SlotID    uuid.UUID     `bun:"slot_id,notnull,type:uuid"`
	Status    BookingStatus `bun:"status,notnull"`
	CreatedAt time.Time     `bun:"created_at,notnull"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	if b.Status == "" {
		b.Status = BookingStatusConfirmed
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}
