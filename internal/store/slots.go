package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tutorly/backend/internal/domain"
)

// SlotFilter narrows ListSlots. Zero values leave a field unconstrained.
type SlotFilter struct {
	TutorID     string
	Status      domain.SlotStatus
	WindowStart time.Time
	WindowEnd   time.Time
}

// Match reports whether s passes the filter. Window bounds use overlap
// semantics.
func (f SlotFilter) Match(s domain.AvailabilitySlot) bool {
	if f.TutorID != "" && s.TutorID != f.TutorID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if !f.WindowEnd.IsZero() && !s.StartTime.Before(f.WindowEnd) {
		return false
	}
	if !f.WindowStart.IsZero() && !s.EndTime.After(f.WindowStart) {
		return false
	}
	return true
}

type SlotRepository interface {
	// ListSlots returns matching slots ordered by start_time ascending.
	ListSlots(ctx context.Context, f SlotFilter) ([]domain.AvailabilitySlot, error)
	GetSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error)
	InsertSlots(ctx context.Context, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error)
	// DeleteSlot removes the row regardless of status and returns it.
	DeleteSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error)

	// SwapSlotStatus sets status = to WHERE id = slotID AND status = from as a
	// single atomic operation. ok is false when no row matched.
	SwapSlotStatus(ctx context.Context, slotID uuid.UUID, from, to domain.SlotStatus) (slot domain.AvailabilitySlot, ok bool, err error)

	// RescheduleSlot moves an available slot. It returns ErrConflict when the
	// slot is no longer available or the new range overlaps another slot of
	// the same tutor, and ErrNotFound when it does not exist.
	RescheduleSlot(ctx context.Context, slotID uuid.UUID, start, end time.Time, comment string) (domain.AvailabilitySlot, error)
}

type BookingRepository interface {
	InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	ListBookings(ctx context.Context, studentID string) ([]domain.Booking, error)
}

type Store interface {
	SlotRepository
	BookingRepository
}
