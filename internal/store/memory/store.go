package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/store"
)

// Store keeps slots and bookings in process memory. Every conditional update
// runs under one mutex, which gives the same per-row check-and-set guarantee
// the SQL store gets from a single UPDATE ... WHERE statement.
type Store struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]domain.AvailabilitySlot
	bookings map[uuid.UUID]domain.Booking
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		slots:    make(map[uuid.UUID]domain.AvailabilitySlot),
		bookings: make(map[uuid.UUID]domain.Booking),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) ListSlots(ctx context.Context, f store.SlotFilter) ([]domain.AvailabilitySlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AvailabilitySlot, 0, len(s.slots))
	for _, slot := range s.slots {
		if f.Match(slot) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (s *Store) GetSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error) {
	if err := ctx.Err(); err != nil {
		return domain.AvailabilitySlot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return domain.AvailabilitySlot{}, store.ErrNotFound
	}
	return slot, nil
}

func (s *Store) InsertSlots(ctx context.Context, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	prepared := make([]domain.AvailabilitySlot, 0, len(slots))
	for _, slot := range slots {
		if err := slot.Validate(); err != nil {
			return nil, store.ErrInvalidSlot
		}
		if slot.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			slot.ID = id
		}
		if slot.Status == "" {
			slot.Status = domain.SlotStatusAvailable
		}
		if !slot.Status.Valid() {
			return nil, store.ErrInvalidSlot
		}
		slot.StartTime = slot.StartTime.UTC()
		slot.EndTime = slot.EndTime.UTC()
		slot.CreatedAt = now
		slot.UpdatedAt = now
		prepared = append(prepared, slot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range prepared {
		if _, exists := s.slots[slot.ID]; exists {
			return nil, store.ErrConflict
		}
	}
	for _, slot := range prepared {
		s.slots[slot.ID] = slot
	}
	return prepared, nil
}

// DeleteSlot removes the slot and its bookings, matching ON DELETE CASCADE in
// the SQL schema.
func (s *Store) DeleteSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error) {
	if err := ctx.Err(); err != nil {
		return domain.AvailabilitySlot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return domain.AvailabilitySlot{}, store.ErrNotFound
	}
	delete(s.slots, slotID)
	for id, b := range s.bookings {
		if b.SlotID == slotID {
			delete(s.bookings, id)
		}
	}
	return slot, nil
}

func (s *Store) SwapSlotStatus(ctx context.Context, slotID uuid.UUID, from, to domain.SlotStatus) (domain.AvailabilitySlot, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.AvailabilitySlot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok || slot.Status != from {
		return domain.AvailabilitySlot{}, false, nil
	}
	slot.Status = to
	slot.UpdatedAt = s.now()
	s.slots[slotID] = slot
	return slot, true, nil
}

func (s *Store) RescheduleSlot(ctx context.Context, slotID uuid.UUID, start, end time.Time, comment string) (domain.AvailabilitySlot, error) {
	if err := ctx.Err(); err != nil {
		return domain.AvailabilitySlot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return domain.AvailabilitySlot{}, store.ErrNotFound
	}
	if slot.Status != domain.SlotStatusAvailable {
		return domain.AvailabilitySlot{}, store.ErrConflict
	}

	moved := slot
	moved.StartTime = start.UTC()
	moved.EndTime = end.UTC()
	moved.Comment = comment
	if err := moved.Validate(); err != nil {
		return domain.AvailabilitySlot{}, store.ErrInvalidSlot
	}
	for id, other := range s.slots {
		if id != slotID && other.TutorID == slot.TutorID && other.Overlaps(moved.StartTime, moved.EndTime) {
			return domain.AvailabilitySlot{}, store.ErrConflict
		}
	}
	moved.UpdatedAt = s.now()
	s.slots[slotID] = moved
	return moved, nil
}

func (s *Store) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, err
	}
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Booking{}, err
		}
		b.ID = id
	}
	if b.Status == "" {
		b.Status = domain.BookingStatusConfirmed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[b.SlotID]; !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	if _, exists := s.bookings[b.ID]; exists {
		return domain.Booking{}, store.ErrConflict
	}
	b.CreatedAt = s.now()
	s.bookings[b.ID] = b
	return b, nil
}

func (s *Store) ListBookings(ctx context.Context, studentID string) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if b.StudentID == studentID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
