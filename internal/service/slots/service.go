package slots

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

const (
	maxCommentLength = 500
	maxSlotDuration  = 24 * time.Hour
	publishTimeout   = 5 * time.Second
)

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
	ObserveSlotWrite(op string, err error)
	ObservePublish(err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSlotWrite(string, error) {}
func (nopRecorder) ObservePublish(error)           {}

type Service struct {
	repo      store.SlotRepository
	publisher Publisher
	metrics   Recorder
	log       *slog.Logger
}

func NewService(repo store.SlotRepository, publisher Publisher, metrics Recorder, log *slog.Logger) *Service {
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
		log:       log.With(slog.String("component", "slots")),
	}
}

type CreateInput struct {
	TutorID   string
	StartTime time.Time
	EndTime   time.Time
	Comment   string
}

// CreateSlot inserts one available slot. Overlap with the tutor's other
// slots is tolerated.
func (s *Service) CreateSlot(ctx context.Context, in CreateInput) (domain.AvailabilitySlot, error) {
	tutorID := strings.TrimSpace(in.TutorID)
	if tutorID == "" {
		return domain.AvailabilitySlot{}, validationError("tutor_id is required")
	}
	start, end, err := validateRange(in.StartTime, in.EndTime)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	comment, err := normalizeComment(in.Comment)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}

	out, err := s.repo.InsertSlots(ctx, []domain.AvailabilitySlot{{
		TutorID:   tutorID,
		StartTime: start,
		EndTime:   end,
		Status:    domain.SlotStatusAvailable,
		Comment:   comment,
	}})
	s.metrics.ObserveSlotWrite("create", err)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	if len(out) != 1 {
		return domain.AvailabilitySlot{}, errors.New("store returned an unexpected number of slots")
	}

	s.publish(ctx, tutorID)
	return out[0], nil
}

type CreateRecurringInput struct {
	TutorID   string
	StartTime time.Time
	EndTime   time.Time
	ByWeekday []int16
	Weeks     int
	TimeZone  string
	Comment   string
}

// CreateRecurringSlots repeats the template range on the selected weekdays.
// All slots are inserted in one store call and one change is published.
func (s *Service) CreateRecurringSlots(ctx context.Context, in CreateRecurringInput) ([]domain.AvailabilitySlot, error) {
	tutorID := strings.TrimSpace(in.TutorID)
	if tutorID == "" {
		return nil, validationError("tutor_id is required")
	}
	tz := strings.TrimSpace(in.TimeZone)
	if tz == "" {
		return nil, validationError("time_zone is required")
	}
	comment, err := normalizeComment(in.Comment)
	if err != nil {
		return nil, err
	}

	ranges, err := domain.ExpandWeekly(domain.WeeklyRule{
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		ByWeekday: in.ByWeekday,
		Weeks:     in.Weeks,
		Timezone:  tz,
	})
	if err != nil {
		return nil, validationError(err.Error())
	}
	if len(ranges) == 0 {
		return nil, validationError("recurrence rule produces no occurrences")
	}

	batch := make([]domain.AvailabilitySlot, 0, len(ranges))
	for _, r := range ranges {
		batch = append(batch, domain.AvailabilitySlot{
			TutorID:   tutorID,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			Status:    domain.SlotStatusAvailable,
			Comment:   comment,
		})
	}

	out, err := s.repo.InsertSlots(ctx, batch)
	s.metrics.ObserveSlotWrite("create_recurring", err)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, tutorID)
	return out, nil
}

// DeleteSlot removes the slot whatever its status.
func (s *Service) DeleteSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error) {
	if slotID == uuid.Nil {
		return domain.AvailabilitySlot{}, validationError("slot_id is required")
	}

	deleted, err := s.repo.DeleteSlot(ctx, slotID)
	s.metrics.ObserveSlotWrite("delete", err)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}

	s.publish(ctx, deleted.TutorID)
	return deleted, nil
}

type RescheduleInput struct {
	SlotID    uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Comment   string
}

func (s *Service) RescheduleSlot(ctx context.Context, in RescheduleInput) (domain.AvailabilitySlot, error) {
	if in.SlotID == uuid.Nil {
		return domain.AvailabilitySlot{}, validationError("slot_id is required")
	}
	start, end, err := validateRange(in.StartTime, in.EndTime)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	comment, err := normalizeComment(in.Comment)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}

	moved, err := s.repo.RescheduleSlot(ctx, in.SlotID, start, end, comment)
	s.metrics.ObserveSlotWrite("reschedule", err)
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}

	s.publish(ctx, moved.TutorID)
	return moved, nil
}

type ListInput struct {
	TutorID     string
	Status      domain.SlotStatus
	WindowStart time.Time
	WindowEnd   time.Time
}

func (s *Service) ListSlots(ctx context.Context, in ListInput) ([]domain.AvailabilitySlot, error) {
	tutorID := strings.TrimSpace(in.TutorID)
	if tutorID == "" {
		return nil, validationError("tutor_id is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return nil, validationError("invalid status")
	}

	f := store.SlotFilter{TutorID: tutorID, Status: in.Status}
	if !in.WindowStart.IsZero() {
		f.WindowStart = in.WindowStart.UTC()
	}
	if !in.WindowEnd.IsZero() {
		f.WindowEnd = in.WindowEnd.UTC()
	}
	if !f.WindowStart.IsZero() && !f.WindowEnd.IsZero() && !f.WindowEnd.After(f.WindowStart) {
		return nil, validationError("window_end must be after window_start")
	}

	return s.repo.ListSlots(ctx, f)
}

// publish failures are logged only: the write has already been committed and
// subscribers catch up on their next refresh.
func (s *Service) publish(ctx context.Context, tutorID string) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, tutorID)
	s.metrics.ObservePublish(err)
	if err != nil {
		s.log.Warn("publish availability change failed",
			slog.String("tutor_id", tutorID),
			slog.Any("err", err),
		)
	}
}

func validateRange(start, end time.Time) (time.Time, time.Time, error) {
	start, end = start.UTC(), end.UTC()
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, validationError("start_time and end_time are required")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, validationError("end_time must be after start_time")
	}
	if end.Sub(start) > maxSlotDuration {
		return time.Time{}, time.Time{}, validationError("duration too long")
	}
	return start, end, nil
}

func normalizeComment(c string) (string, error) {
	c = strings.TrimSpace(c)
	if len(c) > maxCommentLength {
		return "", validationError("comment too long")
	}
	return c, nil
}
