package reservations

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/store"
)

const publishTimeout = 5 * time.Second

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Publisher interface {
	Publish(ctx context.Context, tutorID string) error
}

type Recorder interface {
	ObserveReservation(state string, elapsed time.Duration)
	ObserveCompensation(err error)
	ObservePublish(err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveReservation(string, time.Duration) {}
func (nopRecorder) ObserveCompensation(error)                {}
func (nopRecorder) ObservePublish(error)                     {}

type Service struct {
	repo      store.Store
	publisher Publisher
	metrics   Recorder
	log       *slog.Logger
	now       func() time.Time
}

func NewService(repo store.Store, publisher Publisher, metrics Recorder, log *slog.Logger) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		log:       log.With(slog.String("component", "reservations")),
		now:       time.Now,
	}
}

type ReserveInput struct {
	StudentID string
	SlotID    uuid.UUID
}

type Result struct {
	Booking domain.Booking
	Slot    domain.AvailabilitySlot
	Trace   []State
}

// Reserve claims the slot with a conditional available -> booked update and
// records the booking. If the booking insert fails the claim is released
// with the inverse conditional update, on a context that ignores the
// caller's cancellation. Trace is populated on every return past validation.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (Result, error) {
	studentID := strings.TrimSpace(in.StudentID)
	if studentID == "" {
		return Result{}, validationError("student_id is required")
	}
	if in.SlotID == uuid.Nil {
		return Result{}, validationError("slot_id is required")
	}

	log := s.log.With(slog.String("student_id", studentID), slog.String("slot_id", in.SlotID.String()))
	a := newAttempt()
	started := s.now()
	defer func() {
		s.metrics.ObserveReservation(string(a.state()), s.now().Sub(started))
	}()

	a.enter(StateClaiming)
	slot, ok, err := s.repo.SwapSlotStatus(ctx, in.SlotID, domain.SlotStatusAvailable, domain.SlotStatusBooked)
	if err != nil {
		a.enter(StateLost)
		log.Warn("claim failed", slog.Any("err", err))
		return Result{Trace: a.snapshot()}, &ReservationError{State: StateLost, Cause: err}
	}
	if !ok {
		a.enter(StateLost)
		log.Info("claim lost")
		return Result{Trace: a.snapshot()}, &ReservationError{State: StateLost, Cause: ErrSlotUnavailable}
	}
	a.enter(StateClaimed)

	booking, err := s.repo.InsertBooking(ctx, domain.Booking{
		StudentID: studentID,
		TutorID:   slot.TutorID,
		SlotID:    slot.ID,
		Status:    domain.BookingStatusConfirmed,
	})
	if err != nil {
		a.enter(StateCompensating)
		compErr := s.compensate(context.WithoutCancel(ctx), slot, log)
		a.enter(StateFailed)

		if compErr != nil {
			log.Error("compensation failed, slot left booked without a booking",
				slog.String("tutor_id", slot.TutorID),
				slog.Any("err", err),
				slog.Any("compensation_err", compErr),
			)
		} else {
			log.Warn("booking insert failed, claim released", slog.Any("err", err))
			s.publish(ctx, slot.TutorID)
		}
		return Result{Slot: slot, Trace: a.snapshot()}, &ReservationError{State: StateFailed, Cause: err, CompensationErr: compErr}
	}
	a.enter(StateConfirmed)

	log.Info("reservation confirmed", slog.String("booking_id", booking.ID.String()))
	s.publish(ctx, slot.TutorID)
	return Result{Booking: booking, Slot: slot, Trace: a.snapshot()}, nil
}

// compensate releases a claim with booked -> available. A missing match means
// the tutor deleted the slot in the meantime, which leaves nothing to release.
func (s *Service) compensate(ctx context.Context, slot domain.AvailabilitySlot, log *slog.Logger) error {
	_, ok, err := s.repo.SwapSlotStatus(ctx, slot.ID, domain.SlotStatusBooked, domain.SlotStatusAvailable)
	s.metrics.ObserveCompensation(err)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn("slot no longer booked at compensation time")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, tutorID string) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, tutorID)
	s.metrics.ObservePublish(err)
	if err != nil {
		s.log.Warn("publish availability change failed", slog.String("tutor_id", tutorID), slog.Any("err", err))
	}
}

func (s *Service) ListBookings(ctx context.Context, studentID string) ([]domain.Booking, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, validationError("student_id is required")
	}
	return s.repo.ListBookings(ctx, studentID)
}

// IsContention reports whether err means the slot was taken by someone else.
func IsContention(err error) bool {
	return errors.Is(err, ErrSlotUnavailable)
}
