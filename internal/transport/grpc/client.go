package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/live"
	"tutorly/backend/internal/service/reservations"
	"tutorly/backend/internal/service/slots"
	"tutorly/backend/internal/store"
)

// Client calls both services over one connection. It serves the same
// interfaces as the in-process services so calendar sessions can run
// against a remote server.
type Client struct {
	cc    grpc.ClientConnInterface
	retry live.RetryPolicy
	log   *slog.Logger
}

func NewClient(cc grpc.ClientConnInterface, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cc:    cc,
		retry: live.RetryPolicy{InitialDelay: 500 * time.Millisecond, MaxDelay: 15 * time.Second, BackoffFactor: 2},
		log:   log.With(slog.String("component", "grpc.client")),
	}
}

func callOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
}

func (c *Client) CreateSlot(ctx context.Context, in slots.CreateInput) (domain.AvailabilitySlot, error) {
	out := new(CreateSlotResponse)
	err := c.cc.Invoke(ctx, createSlotMethod, &CreateSlotRequest{
		TutorID:   in.TutorID,
		StartTime: NewTimestamp(in.StartTime),
		EndTime:   NewTimestamp(in.EndTime),
		Comment:   in.Comment,
	}, out, callOptions()...)
	if err != nil {
		return domain.AvailabilitySlot{}, fromSlotStatus(err)
	}
	return fromWireSlot(out.Slot)
}

func (c *Client) CreateRecurringSlots(ctx context.Context, in slots.CreateRecurringInput) ([]domain.AvailabilitySlot, error) {
	weekdays := make([]int32, 0, len(in.ByWeekday))
	for _, wd := range in.ByWeekday {
		weekdays = append(weekdays, int32(wd))
	}

	out := new(CreateRecurringSlotsResponse)
	err := c.cc.Invoke(ctx, createRecurringSlotsMethod, &CreateRecurringSlotsRequest{
		TutorID:   in.TutorID,
		StartTime: NewTimestamp(in.StartTime),
		EndTime:   NewTimestamp(in.EndTime),
		Weekdays:  weekdays,
		Weeks:     int32(in.Weeks),
		TimeZone:  in.TimeZone,
		Comment:   in.Comment,
	}, out, callOptions()...)
	if err != nil {
		return nil, fromSlotStatus(err)
	}
	return fromWireSlots(out.Slots)
}

func (c *Client) DeleteSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error) {
	out := new(DeleteSlotResponse)
	if err := c.cc.Invoke(ctx, deleteSlotMethod, &DeleteSlotRequest{SlotID: slotID.String()}, out, callOptions()...); err != nil {
		return domain.AvailabilitySlot{}, fromSlotStatus(err)
	}
	return fromWireSlot(out.Slot)
}

func (c *Client) RescheduleSlot(ctx context.Context, in slots.RescheduleInput) (domain.AvailabilitySlot, error) {
	out := new(RescheduleSlotResponse)
	err := c.cc.Invoke(ctx, rescheduleSlotMethod, &RescheduleSlotRequest{
		SlotID:    in.SlotID.String(),
		StartTime: NewTimestamp(in.StartTime),
		EndTime:   NewTimestamp(in.EndTime),
		Comment:   in.Comment,
	}, out, callOptions()...)
	if err != nil {
		return domain.AvailabilitySlot{}, fromSlotStatus(err)
	}
	return fromWireSlot(out.Slot)
}

func (c *Client) ListSlots(ctx context.Context, in slots.ListInput) ([]domain.AvailabilitySlot, error) {
	out := new(ListSlotsResponse)
	err := c.cc.Invoke(ctx, listSlotsMethod, &ListSlotsRequest{
		TutorID:     in.TutorID,
		Status:      string(in.Status),
		WindowStart: NewTimestamp(in.WindowStart),
		WindowEnd:   NewTimestamp(in.WindowEnd),
	}, out, callOptions()...)
	if err != nil {
		return nil, fromSlotStatus(err)
	}
	return fromWireSlots(out.Slots)
}

func (c *Client) Reserve(ctx context.Context, in reservations.ReserveInput) (reservations.Result, error) {
	out := new(ReserveSlotResponse)
	err := c.cc.Invoke(ctx, reserveSlotMethod, &ReserveSlotRequest{
		StudentID: in.StudentID,
		SlotID:    in.SlotID.String(),
	}, out, callOptions()...)
	if err != nil {
		return reservations.Result{}, fromReserveStatus(err)
	}

	booking, err := fromWireBooking(out.Booking)
	if err != nil {
		return reservations.Result{}, err
	}
	slot, err := fromWireSlot(out.Slot)
	if err != nil {
		return reservations.Result{}, err
	}
	trace := make([]reservations.State, 0, len(out.Trace))
	for _, st := range out.Trace {
		trace = append(trace, reservations.State(st))
	}
	return reservations.Result{Booking: booking, Slot: slot, Trace: trace}, nil
}

func (c *Client) ListBookings(ctx context.Context, studentID string) ([]domain.Booking, error) {
	out := new(ListBookingsResponse)
	if err := c.cc.Invoke(ctx, listBookingsMethod, &ListBookingsRequest{StudentID: studentID}, out, callOptions()...); err != nil {
		return nil, err
	}
	bookings := make([]domain.Booking, 0, len(out.Bookings))
	for _, b := range out.Bookings {
		booking, err := fromWireBooking(b)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, nil
}

// Subscribe opens a WatchSlots stream and returns once the server has
// registered it. A broken stream is reopened with backoff; a successful
// reopen is reported to onChange since changes may have been missed.
func (c *Client) Subscribe(ctx context.Context, tutorID string, onChange func(live.Change)) (live.Subscription, error) {
	tutorID = strings.TrimSpace(tutorID)
	if tutorID == "" {
		return nil, live.ErrTutorRequired
	}
	if onChange == nil {
		return nil, fmt.Errorf("subscribe %s: onChange is required", tutorID)
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.openWatch(ctx, tutorID)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &watchSubscription{cancel: cancel, done: make(chan struct{})}
	go c.follow(ctx, tutorID, stream, onChange, sub.done)
	return sub, nil
}

func (c *Client) openWatch(ctx context.Context, tutorID string) (grpc.ServerStreamingClient[SlotsChanged], error) {
	stream, err := c.cc.NewStream(ctx, &availabilityServiceDesc.Streams[0], watchSlotsMethod, callOptions()...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchSlotsRequest, SlotsChanged]{ClientStream: stream}
	if err := x.SendMsg(&WatchSlotsRequest{TutorID: tutorID}); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	if _, err := x.Recv(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *Client) follow(ctx context.Context, tutorID string, stream grpc.ServerStreamingClient[SlotsChanged], onChange func(live.Change), done chan struct{}) {
	defer close(done)
	log := c.log.With(slog.String("tutor_id", tutorID))

	for {
		err := forward(stream, onChange)
		if ctx.Err() != nil {
			return
		}
		log.Warn("watch stream interrupted", slog.Any("err", err))

		for attempt := 1; ; attempt++ {
			if !wait(ctx, c.retry.NextDelay(attempt)) {
				return
			}
			stream, err = c.openWatch(ctx, tutorID)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn("watch reconnect failed", slog.Int("attempt", attempt), slog.Any("err", err))
		}
		log.Info("watch stream reopened")
		onChange(live.Change{TutorID: tutorID, At: time.Now().UTC()})
	}
}

func forward(stream grpc.ServerStreamingClient[SlotsChanged], onChange func(live.Change)) error {
	for {
		m, err := stream.Recv()
		if err != nil {
			return err
		}
		onChange(live.Change{TutorID: m.TutorID, At: m.At.AsTime()})
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type watchSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *watchSubscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// fromSlotStatus restores the store sentinels the server mapped away so
// callers can keep using errors.Is.
func fromSlotStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", store.ErrConflict, st.Message())
	}
	return err
}

func fromReserveStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return &reservations.ReservationError{State: reservations.StateLost, Cause: reservations.ErrSlotUnavailable}
	case codes.Unavailable:
		return &reservations.ReservationError{State: reservations.StateLost, Cause: err}
	case codes.Aborted:
		return &reservations.ReservationError{State: reservations.StateFailed, Cause: err}
	}
	return err
}
