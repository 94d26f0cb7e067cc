package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tutorly/backend/internal/calendar"
	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/live"
	"tutorly/backend/internal/service/slots"
)

// TutorCalendar is a tutor's view of their own slots, booked or not. Local
// changes are applied only after the store confirms them.
type TutorCalendar struct {
	tutorID  string
	slots    SlotWriter
	view     *calendar.View
	log      *slog.Logger
	follower follower

	refreshMu sync.Mutex
}

func NewTutorCalendar(tutorID string, slotsAPI SlotWriter, channel live.Subscriber, log *slog.Logger) *TutorCalendar {
	if log == nil {
		log = slog.Default()
	}
	c := &TutorCalendar{
		tutorID: tutorID,
		slots:   slotsAPI,
		view:    calendar.NewView(),
		log:     log.With(slog.String("component", "session.tutor"), slog.String("tutor_id", tutorID)),
	}
	c.follower = follower{channel: channel, tutorID: tutorID, refresh: c.Refresh, log: c.log}
	return c
}

func (c *TutorCalendar) View() *calendar.View {
	return c.view
}

func (c *TutorCalendar) Start(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	return c.follower.start(ctx)
}

func (c *TutorCalendar) Close() error {
	return c.follower.close()
}

func (c *TutorCalendar) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	rows, err := c.slots.ListSlots(ctx, slots.ListInput{TutorID: c.tutorID})
	if err != nil {
		return err
	}
	c.view.Replace(rows)
	return nil
}

func (c *TutorCalendar) Create(ctx context.Context, in slots.CreateInput) (domain.AvailabilitySlot, error) {
	in.TutorID = c.tutorID
	created, err := c.slots.CreateSlot(ctx, in)
	if err != nil {
		c.log.Warn("create slot failed", slog.Any("err", err))
		return domain.AvailabilitySlot{}, err
	}
	c.view.Append(created)
	c.refreshAfterWrite(ctx)
	return created, nil
}

func (c *TutorCalendar) CreateRecurring(ctx context.Context, in slots.CreateRecurringInput) ([]domain.AvailabilitySlot, error) {
	in.TutorID = c.tutorID
	created, err := c.slots.CreateRecurringSlots(ctx, in)
	if err != nil {
		c.log.Warn("create recurring slots failed", slog.Any("err", err))
		return nil, err
	}
	c.view.Append(created...)
	c.refreshAfterWrite(ctx)
	return created, nil
}

// Delete removes one of the tutor's own slots; the slot must be in the view.
func (c *TutorCalendar) Delete(ctx context.Context, slotID uuid.UUID) error {
	if _, ok := c.view.Lookup(slotID); !ok {
		return ErrSlotNotInView
	}
	if _, err := c.slots.DeleteSlot(ctx, slotID); err != nil {
		c.log.Warn("delete slot failed", slog.String("slot_id", slotID.String()), slog.Any("err", err))
		return err
	}
	c.view.Remove(slotID)
	c.refreshAfterWrite(ctx)
	return nil
}

func (c *TutorCalendar) Reschedule(ctx context.Context, in slots.RescheduleInput) (domain.AvailabilitySlot, error) {
	if _, ok := c.view.Lookup(in.SlotID); !ok {
		return domain.AvailabilitySlot{}, ErrSlotNotInView
	}
	moved, err := c.slots.RescheduleSlot(ctx, in)
	if err != nil {
		c.log.Warn("reschedule slot failed", slog.String("slot_id", in.SlotID.String()), slog.Any("err", err))
		return domain.AvailabilitySlot{}, err
	}
	c.view.Append(moved)
	c.refreshAfterWrite(ctx)
	return moved, nil
}

func (c *TutorCalendar) refreshAfterWrite(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn("refresh after write failed", slog.Any("err", err))
	}
}
