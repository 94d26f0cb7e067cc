package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tutorly/backend/internal/calendar"
	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/live"
	"tutorly/backend/internal/service/reservations"
	"tutorly/backend/internal/service/slots"
)

// StudentCalendar shows one tutor's available slots to one student and
// routes calendar clicks into the reservation protocol.
type StudentCalendar struct {
	studentID string
	tutorID   string
	slots     SlotReader
	reserver  Reserver
	view      *calendar.View
	log       *slog.Logger
	follower  follower

	refreshMu sync.Mutex
	onRefresh func([]domain.AvailabilitySlot)
}

func NewStudentCalendar(studentID, tutorID string, slotsAPI SlotReader, reserver Reserver, channel live.Subscriber, log *slog.Logger) *StudentCalendar {
	if log == nil {
		log = slog.Default()
	}
	c := &StudentCalendar{
		studentID: studentID,
		tutorID:   tutorID,
		slots:     slotsAPI,
		reserver:  reserver,
		view:      calendar.NewView(),
		log: log.With(
			slog.String("component", "session.student"),
			slog.String("student_id", studentID),
			slog.String("tutor_id", tutorID),
		),
	}
	c.follower = follower{channel: channel, tutorID: tutorID, refresh: c.Refresh, log: c.log}
	return c
}

// OnRefresh registers fn to run after every successful refresh. Call before
// Start.
func (c *StudentCalendar) OnRefresh(fn func([]domain.AvailabilitySlot)) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.onRefresh = fn
}

func (c *StudentCalendar) View() *calendar.View {
	return c.view
}

// Start loads the view and follows the tutor's live changes until Close.
func (c *StudentCalendar) Start(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	return c.follower.start(ctx)
}

func (c *StudentCalendar) Close() error {
	return c.follower.close()
}

// Refresh replaces the view with the tutor's currently available slots.
func (c *StudentCalendar) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	rows, err := c.slots.ListSlots(ctx, slots.ListInput{TutorID: c.tutorID, Status: domain.SlotStatusAvailable})
	if err != nil {
		return err
	}
	c.view.Replace(rows)
	if c.onRefresh != nil {
		c.onRefresh(rows)
	}
	return nil
}

// Book reserves a slot that is visible in the view. On success the slot is
// dropped from the view; on any failure the view is re-fetched.
func (c *StudentCalendar) Book(ctx context.Context, slotID uuid.UUID) (reservations.Result, error) {
	if _, ok := c.view.Lookup(slotID); !ok {
		return reservations.Result{}, ErrSlotNotInView
	}

	res, err := c.reserver.Reserve(ctx, reservations.ReserveInput{StudentID: c.studentID, SlotID: slotID})
	if err != nil {
		if reservations.IsContention(err) {
			c.log.Info("slot was just taken", slog.String("slot_id", slotID.String()))
		} else {
			c.log.Warn("booking failed", slog.String("slot_id", slotID.String()), slog.Any("err", err))
		}
		if rerr := c.Refresh(ctx); rerr != nil {
			c.log.Warn("refresh after failed booking", slog.Any("err", rerr))
		}
		return res, err
	}

	c.view.Remove(slotID)
	return res, nil
}
