package grpc

import (
	"context"
	"errors"
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
	"tutorly/backend/internal/service/slots"
	"tutorly/backend/internal/store"
)

const watchBuffer = 16

type AvailabilityServer struct {
	svc     availabilityService
	channel live.Subscriber
	log     *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

type availabilityService interface {
	CreateSlot(ctx context.Context, in slots.CreateInput) (domain.AvailabilitySlot, error)
	CreateRecurringSlots(ctx context.Context, in slots.CreateRecurringInput) ([]domain.AvailabilitySlot, error)
	DeleteSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error)
	RescheduleSlot(ctx context.Context, in slots.RescheduleInput) (domain.AvailabilitySlot, error)
	ListSlots(ctx context.Context, in slots.ListInput) ([]domain.AvailabilitySlot, error)
}

var _ AvailabilityServiceServer = (*AvailabilityServer)(nil)

func NewAvailabilityServer(svc availabilityService, channel live.Subscriber, log *slog.Logger) *AvailabilityServer {
	if log == nil {
		log = slog.Default()
	}
	return &AvailabilityServer{
		svc:     svc,
		channel: channel,
		log:     log.With(slog.String("component", "grpc.availability")),
		stop:    make(chan struct{}),
	}
}

// Shutdown ends every open WatchSlots stream so GracefulStop can return.
func (s *AvailabilityServer) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *AvailabilityServer) CreateSlot(ctx context.Context, req *CreateSlotRequest) (*CreateSlotResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateSlot"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.StartTime == nil || req.EndTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("tutor_id", req.TutorID))
		return nil, status.Error(codes.InvalidArgument, "start_time and end_time are required")
	}

	slot, err := s.svc.CreateSlot(ctx, slots.CreateInput{
		TutorID:   req.TutorID,
		StartTime: req.StartTime.AsTime(),
		EndTime:   req.EndTime.AsTime(),
		Comment:   req.Comment,
	})
	if err != nil {
		return nil, slotError(log.With(slog.String("tutor_id", req.TutorID)), "slot create failed", err)
	}

	log.Info(
		"slot created",
		slog.String("slot_id", slot.ID.String()),
		slog.String("tutor_id", slot.TutorID),
		slog.Time("start_time", slot.StartTime),
		slog.Time("end_time", slot.EndTime),
	)

	return &CreateSlotResponse{Slot: toWireSlot(slot)}, nil
}

func (s *AvailabilityServer) CreateRecurringSlots(ctx context.Context, req *CreateRecurringSlotsRequest) (*CreateRecurringSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateRecurringSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.StartTime == nil || req.EndTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("tutor_id", req.TutorID))
		return nil, status.Error(codes.InvalidArgument, "start_time and end_time are required")
	}

	weekdays := make([]int16, 0, len(req.Weekdays))
	for _, wd := range req.Weekdays {
		if wd < 1 || wd > 7 {
			log.Warn("invalid request", slog.String("reason", "invalid_weekday"), slog.String("tutor_id", req.TutorID), slog.Int("weekday", int(wd)))
			return nil, status.Error(codes.InvalidArgument, "weekdays must be between 1 (Monday) and 7 (Sunday)")
		}
		weekdays = append(weekdays, int16(wd))
	}

	created, err := s.svc.CreateRecurringSlots(ctx, slots.CreateRecurringInput{
		TutorID:   req.TutorID,
		StartTime: req.StartTime.AsTime(),
		EndTime:   req.EndTime.AsTime(),
		ByWeekday: weekdays,
		Weeks:     int(req.Weeks),
		TimeZone:  req.TimeZone,
		Comment:   req.Comment,
	})
	if err != nil {
		return nil, slotError(log.With(slog.String("tutor_id", req.TutorID)), "recurring slots create failed", err)
	}

	log.Info(
		"recurring slots created",
		slog.String("tutor_id", req.TutorID),
		slog.Int("count", len(created)),
		slog.String("time_zone", req.TimeZone),
	)

	return &CreateRecurringSlotsResponse{Slots: toWireSlots(created)}, nil
}

func (s *AvailabilityServer) DeleteSlot(ctx context.Context, req *DeleteSlotRequest) (*DeleteSlotResponse, error) {
	log := s.log.With(slog.String("rpc", "DeleteSlot"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.SlotID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "slot_id must be a UUID")
	}

	deleted, err := s.svc.DeleteSlot(ctx, id)
	if err != nil {
		return nil, slotError(log.With(slog.String("slot_id", id.String())), "slot delete failed", err)
	}

	log.Info("slot deleted", slog.String("slot_id", id.String()), slog.String("tutor_id", deleted.TutorID), slog.String("status", string(deleted.Status)))
	return &DeleteSlotResponse{Slot: toWireSlot(deleted)}, nil
}

func (s *AvailabilityServer) RescheduleSlot(ctx context.Context, req *RescheduleSlotRequest) (*RescheduleSlotResponse, error) {
	log := s.log.With(slog.String("rpc", "RescheduleSlot"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.SlotID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "slot_id must be a UUID")
	}
	if req.StartTime == nil || req.EndTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("slot_id", id.String()))
		return nil, status.Error(codes.InvalidArgument, "start_time and end_time are required")
	}

	moved, err := s.svc.RescheduleSlot(ctx, slots.RescheduleInput{
		SlotID:    id,
		StartTime: req.StartTime.AsTime(),
		EndTime:   req.EndTime.AsTime(),
		Comment:   req.Comment,
	})
	if err != nil {
		return nil, slotError(log.With(slog.String("slot_id", id.String())), "slot reschedule failed", err)
	}

	log.Info(
		"slot rescheduled",
		slog.String("slot_id", moved.ID.String()),
		slog.String("tutor_id", moved.TutorID),
		slog.Time("start_time", moved.StartTime),
		slog.Time("end_time", moved.EndTime),
	)

	return &RescheduleSlotResponse{Slot: toWireSlot(moved)}, nil
}

func (s *AvailabilityServer) ListSlots(ctx context.Context, req *ListSlotsRequest) (*ListSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	list, err := s.svc.ListSlots(ctx, slots.ListInput{
		TutorID:     req.TutorID,
		Status:      domain.SlotStatus(req.Status),
		WindowStart: req.WindowStart.AsTime(),
		WindowEnd:   req.WindowEnd.AsTime(),
	})
	if err != nil {
		return nil, slotError(log.With(slog.String("tutor_id", req.TutorID)), "slots list failed", err)
	}

	log.Debug(
		"slots listed",
		slog.String("tutor_id", req.TutorID),
		slog.String("status", req.Status),
		slog.Int("count", len(list)),
	)

	return &ListSlotsResponse{Slots: toWireSlots(list)}, nil
}

// WatchSlots streams one SlotsChanged per availability change of the tutor.
// Signals are dropped while the client is behind by watchBuffer messages;
// any later signal still triggers its refresh.
func (s *AvailabilityServer) WatchSlots(req *WatchSlotsRequest, stream grpc.ServerStreamingServer[SlotsChanged]) error {
	log := s.log.With(slog.String("rpc", "WatchSlots"))

	if req == nil || strings.TrimSpace(req.TutorID) == "" {
		log.Warn("invalid request", slog.String("reason", "missing_tutor_id"))
		return status.Error(codes.InvalidArgument, "tutor_id is required")
	}
	tutorID := strings.TrimSpace(req.TutorID)
	log = log.With(slog.String("tutor_id", tutorID))
	ctx := stream.Context()

	changes := make(chan live.Change, watchBuffer)
	sub, err := s.channel.Subscribe(ctx, tutorID, func(c live.Change) {
		select {
		case changes <- c:
		default:
		}
	})
	if err != nil {
		log.Error("subscribe failed", slog.Any("err", err))
		return status.Error(codes.Unavailable, "live updates are unavailable")
	}
	defer sub.Close()

	if err := stream.Send(&SlotsChanged{TutorID: tutorID, At: NewTimestamp(time.Now()), Initial: true}); err != nil {
		return err
	}
	log.Debug("watch started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("watch ended", slog.Any("err", ctx.Err()))
			return nil
		case <-s.stop:
			log.Debug("watch ended", slog.String("reason", "shutdown"))
			return status.Error(codes.Unavailable, "server is shutting down")
		case c := <-changes:
			if err := stream.Send(&SlotsChanged{TutorID: c.TutorID, At: NewTimestamp(c.At)}); err != nil {
				log.Debug("watch send failed", slog.Any("err", err))
				return err
			}
		}
	}
}

// slotError maps slot service errors to gRPC statuses and logs them at the
// matching level.
func slotError(log *slog.Logger, msg string, err error) error {
	var vErr *slots.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info("slot not found")
		return status.Error(codes.NotFound, "slot not found")
	case errors.Is(err, store.ErrConflict):
		log.Info("slot conflict", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, "That slot is booked or overlaps another slot. Refresh and try again.")
	case errors.Is(err, store.ErrInvalidSlot):
		log.Warn("invalid slot", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, "slot end_time must be after start_time")
	}
	log.Error(msg, slog.Any("err", err))
	return status.Error(codes.Internal, "internal error")
}
