package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/service/reservations"
)

const (
	slotTakenMessage     = "Sorry, that slot was just taken. Please pick another one."
	bookingFailedMessage = "We couldn't complete the booking. Please try again."
)

type ReservationServer struct {
	svc reservationService
	log *slog.Logger
}

type reservationService interface {
	Reserve(ctx context.Context, in reservations.ReserveInput) (reservations.Result, error)
	ListBookings(ctx context.Context, studentID string) ([]domain.Booking, error)
}

var _ ReservationServiceServer = (*ReservationServer)(nil)

func NewReservationServer(svc reservationService, log *slog.Logger) *ReservationServer {
	if log == nil {
		log = slog.Default()
	}
	return &ReservationServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.reservations")),
	}
}

func (s *ReservationServer) ReserveSlot(ctx context.Context, req *ReserveSlotRequest) (*ReserveSlotResponse, error) {
	log := s.log.With(slog.String("rpc", "ReserveSlot"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.SlotID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("student_id", req.StudentID))
		return nil, status.Error(codes.InvalidArgument, "slot_id must be a UUID")
	}
	log = log.With(slog.String("student_id", req.StudentID), slog.String("slot_id", id.String()))

	res, err := s.svc.Reserve(ctx, reservations.ReserveInput{StudentID: req.StudentID, SlotID: id})
	if err != nil {
		var vErr *reservations.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err))
			return nil, status.Error(codes.InvalidArgument, vErr.Error())
		}
		if reservations.IsContention(err) {
			log.Info("slot already taken")
			return nil, status.Error(codes.FailedPrecondition, slotTakenMessage)
		}
		var rErr *reservations.ReservationError
		if errors.As(err, &rErr) {
			switch rErr.State {
			case reservations.StateLost:
				log.Warn("slot claim failed", slog.Any("err", err))
				return nil, status.Error(codes.Unavailable, "Booking is temporarily unavailable. Please try again.")
			case reservations.StateFailed:
				if rErr.Residual() {
					log.Error("booking failed with residual claim", slog.Any("err", err))
				} else {
					log.Warn("booking failed", slog.Any("err", err))
				}
				return nil, status.Error(codes.Aborted, bookingFailedMessage)
			}
		}
		log.Error("reserve failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}

	trace := make([]string, 0, len(res.Trace))
	for _, st := range res.Trace {
		trace = append(trace, string(st))
	}

	log.Info(
		"slot reserved",
		slog.String("booking_id", res.Booking.ID.String()),
		slog.String("tutor_id", res.Slot.TutorID),
		slog.Time("start_time", res.Slot.StartTime),
	)

	return &ReserveSlotResponse{
		Booking: toWireBooking(res.Booking),
		Slot:    toWireSlot(res.Slot),
		Trace:   trace,
	}, nil
}

func (s *ReservationServer) ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListBookings"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	bookings, err := s.svc.ListBookings(ctx, req.StudentID)
	if err != nil {
		var vErr *reservations.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err))
			return nil, status.Error(codes.InvalidArgument, vErr.Error())
		}
		log.Error("bookings list failed", slog.Any("err", err), slog.String("student_id", req.StudentID))
		return nil, status.Error(codes.Internal, "internal error")
	}

	out := make([]*Booking, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toWireBooking(b))
	}

	log.Debug("bookings listed", slog.String("student_id", req.StudentID), slog.Int("count", len(out)))
	return &ListBookingsResponse{Bookings: out}, nil
}
