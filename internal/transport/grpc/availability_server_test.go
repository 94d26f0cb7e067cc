package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/service/slots"
	"tutorly/backend/internal/store"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAvailabilityService struct {
	createFn          func(ctx context.Context, in slots.CreateInput) (domain.AvailabilitySlot, error)
	createRecurringFn func(ctx context.Context, in slots.CreateRecurringInput) ([]domain.AvailabilitySlot, error)
	deleteFn          func(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error)
	rescheduleFn      func(ctx context.Context, in slots.RescheduleInput) (domain.AvailabilitySlot, error)
	listFn            func(ctx context.Context, in slots.ListInput) ([]domain.AvailabilitySlot, error)
}

func (f *fakeAvailabilityService) CreateSlot(ctx context.Context, in slots.CreateInput) (domain.AvailabilitySlot, error) {
	if f.createFn == nil {
		panic("CreateSlot not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeAvailabilityService) CreateRecurringSlots(ctx context.Context, in slots.CreateRecurringInput) ([]domain.AvailabilitySlot, error) {
	if f.createRecurringFn == nil {
		panic("CreateRecurringSlots not configured")
	}
	return f.createRecurringFn(ctx, in)
}

func (f *fakeAvailabilityService) DeleteSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error) {
	if f.deleteFn == nil {
		panic("DeleteSlot not configured")
	}
	return f.deleteFn(ctx, slotID)
}

func (f *fakeAvailabilityService) RescheduleSlot(ctx context.Context, in slots.RescheduleInput) (domain.AvailabilitySlot, error) {
	if f.rescheduleFn == nil {
		panic("RescheduleSlot not configured")
	}
	return f.rescheduleFn(ctx, in)
}

func (f *fakeAvailabilityService) ListSlots(ctx context.Context, in slots.ListInput) ([]domain.AvailabilitySlot, error) {
	if f.listFn == nil {
		panic("ListSlots not configured")
	}
	return f.listFn(ctx, in)
}

func TestCreateSlot_RejectsMissingTimes(t *testing.T) {
	srv := NewAvailabilityServer(&fakeAvailabilityService{}, nil, testLog)

	_, err := srv.CreateSlot(context.Background(), &CreateSlotRequest{TutorID: "t1"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}

	_, err = srv.CreateSlot(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("nil request code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCreateSlot_PassesInputAndReturnsSlot(t *testing.T) {
	start := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000010")
	var got slots.CreateInput

	srv := NewAvailabilityServer(&fakeAvailabilityService{
		createFn: func(ctx context.Context, in slots.CreateInput) (domain.AvailabilitySlot, error) {
			got = in
			return domain.AvailabilitySlot{ID: id, TutorID: in.TutorID, StartTime: in.StartTime, EndTime: in.EndTime, Status: domain.SlotStatusAvailable}, nil
		},
	}, nil, testLog)

	resp, err := srv.CreateSlot(context.Background(), &CreateSlotRequest{
		TutorID:   "t1",
		StartTime: NewTimestamp(start),
		EndTime:   NewTimestamp(start.Add(time.Hour)),
		Comment:   "algebra",
	})
	if err != nil {
		t.Fatalf("CreateSlot error: %v", err)
	}
	if got.TutorID != "t1" || got.Comment != "algebra" || !got.StartTime.Equal(start) {
		t.Fatalf("input = %+v", got)
	}
	if resp.Slot.ID != id.String() || resp.Slot.Status != "available" {
		t.Fatalf("slot = %+v", resp.Slot)
	}
}

func TestSlotErrorsMapToCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "not found", err: store.ErrNotFound, want: codes.NotFound},
		{name: "conflict", err: store.ErrConflict, want: codes.FailedPrecondition},
		{name: "invalid slot", err: store.ErrInvalidSlot, want: codes.InvalidArgument},
		{name: "unexpected", err: errors.New("boom"), want: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewAvailabilityServer(&fakeAvailabilityService{
				deleteFn: func(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error) {
					return domain.AvailabilitySlot{}, tt.err
				},
			}, nil, testLog)

			_, err := srv.DeleteSlot(context.Background(), &DeleteSlotRequest{SlotID: uuid.NewString()})
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
		})
	}
}

func TestDeleteSlot_RejectsInvalidUUID(t *testing.T) {
	srv := NewAvailabilityServer(&fakeAvailabilityService{}, nil, testLog)

	_, err := srv.DeleteSlot(context.Background(), &DeleteSlotRequest{SlotID: "nope"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCreateRecurringSlots_ConvertsWeekdays(t *testing.T) {
	start := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	var got slots.CreateRecurringInput

	srv := NewAvailabilityServer(&fakeAvailabilityService{
		createRecurringFn: func(ctx context.Context, in slots.CreateRecurringInput) ([]domain.AvailabilitySlot, error) {
			got = in
			return []domain.AvailabilitySlot{{ID: uuid.New()}, {ID: uuid.New()}}, nil
		},
	}, nil, testLog)

	resp, err := srv.CreateRecurringSlots(context.Background(), &CreateRecurringSlotsRequest{
		TutorID:   "t1",
		StartTime: NewTimestamp(start),
		EndTime:   NewTimestamp(start.Add(time.Hour)),
		Weekdays:  []int32{1, 3},
		Weeks:     4,
		TimeZone:  "Europe/Berlin",
	})
	if err != nil {
		t.Fatalf("CreateRecurringSlots error: %v", err)
	}
	if len(got.ByWeekday) != 2 || got.ByWeekday[0] != 1 || got.ByWeekday[1] != 3 {
		t.Fatalf("weekdays = %v", got.ByWeekday)
	}
	if got.Weeks != 4 || got.TimeZone != "Europe/Berlin" {
		t.Fatalf("input = %+v", got)
	}
	if len(resp.Slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(resp.Slots))
	}
}

func TestCreateRecurringSlots_RejectsOutOfRangeWeekdays(t *testing.T) {
	start := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	srv := NewAvailabilityServer(&fakeAvailabilityService{
		createRecurringFn: func(ctx context.Context, in slots.CreateRecurringInput) ([]domain.AvailabilitySlot, error) {
			t.Fatalf("service called with weekdays %v", in.ByWeekday)
			return nil, nil
		},
	}, nil, testLog)

	// 65537 would wrap to Monday after an int16 conversion.
	for _, wd := range []int32{0, 8, -1, 65537} {
		_, err := srv.CreateRecurringSlots(context.Background(), &CreateRecurringSlotsRequest{
			TutorID:   "t1",
			StartTime: NewTimestamp(start),
			EndTime:   NewTimestamp(start.Add(time.Hour)),
			Weekdays:  []int32{1, wd},
			Weeks:     1,
		})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("weekday %d: code = %s, want %s", wd, status.Code(err), codes.InvalidArgument)
		}
	}
}

func TestListSlots_ValidationError(t *testing.T) {
	srv := NewAvailabilityServer(&fakeAvailabilityService{
		listFn: func(ctx context.Context, in slots.ListInput) ([]domain.AvailabilitySlot, error) {
			if !in.WindowStart.IsZero() {
				t.Fatalf("window_start should be unset")
			}
			return slots.NewService(nil, nil, nil, testLog).ListSlots(ctx, in)
		},
	}, nil, testLog)

	_, err := srv.ListSlots(context.Background(), &ListSlotsRequest{})
	st, _ := status.FromError(err)
	if st.Code() != codes.InvalidArgument || st.Message() != "tutor_id is required" {
		t.Fatalf("status = %v", st)
	}
}

func TestWatchSlots_RequiresTutor(t *testing.T) {
	srv := NewAvailabilityServer(&fakeAvailabilityService{}, nil, testLog)

	err := srv.WatchSlots(&WatchSlotsRequest{TutorID: "  "}, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}
