package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/service/reservations"
)

type fakeReservationService struct {
	reserveFn      func(ctx context.Context, in reservations.ReserveInput) (reservations.Result, error)
	listBookingsFn func(ctx context.Context, studentID string) ([]domain.Booking, error)
}

func (f *fakeReservationService) Reserve(ctx context.Context, in reservations.ReserveInput) (reservations.Result, error) {
	if f.reserveFn == nil {
		panic("Reserve not configured")
	}
	return f.reserveFn(ctx, in)
}

func (f *fakeReservationService) ListBookings(ctx context.Context, studentID string) ([]domain.Booking, error) {
	if f.listBookingsFn == nil {
		panic("ListBookings not configured")
	}
	return f.listBookingsFn(ctx, studentID)
}

func TestReserveSlot_MapsOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    codes.Code
		wantMsg string
	}{
		{
			name:    "contention",
			err:     &reservations.ReservationError{State: reservations.StateLost, Cause: reservations.ErrSlotUnavailable},
			want:    codes.FailedPrecondition,
			wantMsg: slotTakenMessage,
		},
		{
			name: "claim store error",
			err:  &reservations.ReservationError{State: reservations.StateLost, Cause: errors.New("connection reset")},
			want: codes.Unavailable,
		},
		{
			name:    "compensated failure",
			err:     &reservations.ReservationError{State: reservations.StateFailed, Cause: errors.New("insert failed")},
			want:    codes.Aborted,
			wantMsg: bookingFailedMessage,
		},
		{
			name:    "residual failure",
			err:     &reservations.ReservationError{State: reservations.StateFailed, Cause: errors.New("insert failed"), CompensationErr: errors.New("release failed")},
			want:    codes.Aborted,
			wantMsg: bookingFailedMessage,
		},
		{
			name: "unexpected",
			err:  errors.New("boom"),
			want: codes.Internal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewReservationServer(&fakeReservationService{
				reserveFn: func(ctx context.Context, in reservations.ReserveInput) (reservations.Result, error) {
					return reservations.Result{}, tt.err
				},
			}, testLog)

			_, err := srv.ReserveSlot(context.Background(), &ReserveSlotRequest{StudentID: "s1", SlotID: uuid.NewString()})
			st, _ := status.FromError(err)
			if st.Code() != tt.want {
				t.Fatalf("code = %s, want %s", st.Code(), tt.want)
			}
			if tt.wantMsg != "" && st.Message() != tt.wantMsg {
				t.Fatalf("message = %q, want %q", st.Message(), tt.wantMsg)
			}
		})
	}
}

func TestReserveSlot_ReturnsTrace(t *testing.T) {
	slotID := uuid.New()
	srv := NewReservationServer(&fakeReservationService{
		reserveFn: func(ctx context.Context, in reservations.ReserveInput) (reservations.Result, error) {
			if in.StudentID != "s1" || in.SlotID != slotID {
				t.Fatalf("input = %+v", in)
			}
			return reservations.Result{
				Booking: domain.Booking{ID: uuid.New(), StudentID: "s1", SlotID: slotID, Status: domain.BookingStatusConfirmed},
				Slot:    domain.AvailabilitySlot{ID: slotID, Status: domain.SlotStatusBooked},
				Trace:   []reservations.State{reservations.StateSelected, reservations.StateClaiming, reservations.StateClaimed, reservations.StateConfirmed},
			}, nil
		},
	}, testLog)

	resp, err := srv.ReserveSlot(context.Background(), &ReserveSlotRequest{StudentID: "s1", SlotID: slotID.String()})
	if err != nil {
		t.Fatalf("ReserveSlot error: %v", err)
	}
	if len(resp.Trace) != 4 || resp.Trace[3] != "confirmed" {
		t.Fatalf("trace = %v", resp.Trace)
	}
	if resp.Booking.SlotID != slotID.String() || resp.Slot.Status != "booked" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestReserveSlot_RejectsInvalidUUID(t *testing.T) {
	srv := NewReservationServer(&fakeReservationService{}, testLog)

	_, err := srv.ReserveSlot(context.Background(), &ReserveSlotRequest{StudentID: "s1", SlotID: "x"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestListBookings_ValidationError(t *testing.T) {
	srv := NewReservationServer(&fakeReservationService{
		listBookingsFn: func(ctx context.Context, studentID string) ([]domain.Booking, error) {
			return reservations.NewService(nil, nil, nil, testLog).ListBookings(ctx, studentID)
		},
	}, testLog)

	_, err := srv.ListBookings(context.Background(), &ListBookingsRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}
