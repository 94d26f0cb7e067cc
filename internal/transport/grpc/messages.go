package grpc

import (
	"github.com/google/uuid"

	"tutorly/backend/internal/domain"
)

type Slot struct {
	ID        string     `json:"id"`
	TutorID   string     `json:"tutor_id"`
	StartTime *Timestamp `json:"start_time,omitempty"`
	EndTime   *Timestamp `json:"end_time,omitempty"`
	Status    string     `json:"status"`
	Comment   string     `json:"comment,omitempty"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
	UpdatedAt *Timestamp `json:"updated_at,omitempty"`
}

type Booking struct {
	ID        string     `json:"id"`
	StudentID string     `json:"student_id"`
	TutorID   string     `json:"tutor_id"`
	SlotID    string     `json:"slot_id"`
	Status    string     `json:"status"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

type CreateSlotRequest struct {
	TutorID   string     `json:"tutor_id"`
	StartTime *Timestamp `json:"start_time,omitempty"`
	EndTime   *Timestamp `json:"end_time,omitempty"`
	Comment   string     `json:"comment,omitempty"`
}

type CreateSlotResponse struct {
	Slot *Slot `json:"slot"`
}

// CreateRecurringSlotsRequest repeats the template range on ISO weekdays
// (1=Monday .. 7=Sunday) for Weeks weeks in TimeZone.
type CreateRecurringSlotsRequest struct {
	TutorID   string     `json:"tutor_id"`
	StartTime *Timestamp `json:"start_time,omitempty"`
	EndTime   *Timestamp `json:"end_time,omitempty"`
	Weekdays  []int32    `json:"weekdays"`
	Weeks     int32      `json:"weeks"`
	TimeZone  string     `json:"time_zone"`
	Comment   string     `json:"comment,omitempty"`
}

type CreateRecurringSlotsResponse struct {
	Slots []*Slot `json:"slots"`
}

type DeleteSlotRequest struct {
	SlotID string `json:"slot_id"`
}

type DeleteSlotResponse struct {
	Slot *Slot `json:"slot"`
}

type RescheduleSlotRequest struct {
	SlotID    string     `json:"slot_id"`
	StartTime *Timestamp `json:"start_time,omitempty"`
	EndTime   *Timestamp `json:"end_time,omitempty"`
	Comment   string     `json:"comment,omitempty"`
}

type RescheduleSlotResponse struct {
	Slot *Slot `json:"slot"`
}

// ListSlotsRequest leaves Status and the window bounds unconstrained when
// empty.
type ListSlotsRequest struct {
	TutorID     string     `json:"tutor_id"`
	Status      string     `json:"status,omitempty"`
	WindowStart *Timestamp `json:"window_start,omitempty"`
	WindowEnd   *Timestamp `json:"window_end,omitempty"`
}

type ListSlotsResponse struct {
	Slots []*Slot `json:"slots"`
}

type WatchSlotsRequest struct {
	TutorID string `json:"tutor_id"`
}

// SlotsChanged is a signal only. Initial is set on the first message of a
// stream, sent once the subscription is registered.
type SlotsChanged struct {
	TutorID string     `json:"tutor_id"`
	At      *Timestamp `json:"at,omitempty"`
	Initial bool       `json:"initial,omitempty"`
}

type ReserveSlotRequest struct {
	StudentID string `json:"student_id"`
	SlotID    string `json:"slot_id"`
}

type ReserveSlotResponse struct {
	Booking *Booking `json:"booking"`
	Slot    *Slot    `json:"slot"`
	Trace   []string `json:"trace,omitempty"`
}

type ListBookingsRequest struct {
	StudentID string `json:"student_id"`
}

type ListBookingsResponse struct {
	Bookings []*Booking `json:"bookings"`
}

func toWireSlot(s domain.AvailabilitySlot) *Slot {
	return &Slot{
		ID:        s.ID.String(),
		TutorID:   s.TutorID,
		StartTime: NewTimestamp(s.StartTime),
		EndTime:   NewTimestamp(s.EndTime),
		Status:    string(s.Status),
		Comment:   s.Comment,
		CreatedAt: NewTimestamp(s.CreatedAt),
		UpdatedAt: NewTimestamp(s.UpdatedAt),
	}
}

func toWireSlots(in []domain.AvailabilitySlot) []*Slot {
	out := make([]*Slot, 0, len(in))
	for _, s := range in {
		out = append(out, toWireSlot(s))
	}
	return out
}

func toWireBooking(b domain.Booking) *Booking {
	return &Booking{
		ID:        b.ID.String(),
		StudentID: b.StudentID,
		TutorID:   b.TutorID,
		SlotID:    b.SlotID.String(),
		Status:    string(b.Status),
		CreatedAt: NewTimestamp(b.CreatedAt),
	}
}

func fromWireSlot(s *Slot) (domain.AvailabilitySlot, error) {
	if s == nil {
		return domain.AvailabilitySlot{}, nil
	}
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	return domain.AvailabilitySlot{
		ID:        id,
		TutorID:   s.TutorID,
		StartTime: s.StartTime.AsTime(),
		EndTime:   s.EndTime.AsTime(),
		Status:    domain.SlotStatus(s.Status),
		Comment:   s.Comment,
		CreatedAt: s.CreatedAt.AsTime(),
		UpdatedAt: s.UpdatedAt.AsTime(),
	}, nil
}

func fromWireSlots(in []*Slot) ([]domain.AvailabilitySlot, error) {
	out := make([]domain.AvailabilitySlot, 0, len(in))
	for _, s := range in {
		slot, err := fromWireSlot(s)
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, nil
}

func fromWireBooking(b *Booking) (domain.Booking, error) {
	if b == nil {
		return domain.Booking{}, nil
	}
	id, err := uuid.Parse(b.ID)
	if err != nil {
		return domain.Booking{}, err
	}
	slotID, err := uuid.Parse(b.SlotID)
	if err != nil {
		return domain.Booking{}, err
	}
	return domain.Booking{
		ID:        id,
		StudentID: b.StudentID,
		TutorID:   b.TutorID,
		SlotID:    slotID,
		Status:    domain.BookingStatus(b.Status),
		CreatedAt: b.CreatedAt.AsTime(),
	}, nil
}
