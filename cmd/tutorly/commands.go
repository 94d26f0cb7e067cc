package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/status"

	"tutorly/backend/internal/calendar"
	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/service/reservations"
	"tutorly/backend/internal/service/slots"
	"tutorly/backend/internal/session"
	"tutorly/backend/internal/store"
)

const dateLayout = "2006-01-02"

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func runSlots(ctx context.Context, a *app, args []string) error {
	fs := newFlags("slots")
	tutorID := fs.String("tutor", "", "tutor id")
	mode := fs.String("view", "week", "calendar view: day, week or month")
	date := fs.String("date", "", "anchor date (YYYY-MM-DD), defaults to today")
	tz := fs.String("tz", "Local", "time zone for the calendar window")
	onlyAvailable := fs.Bool("available", false, "hide booked slots")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := calendar.ParseMode(*mode)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("invalid -tz: %w", err)
	}
	anchor, err := parseDate(*date, loc)
	if err != nil {
		return err
	}
	start, end, err := calendar.Window(m, anchor, loc)
	if err != nil {
		return err
	}

	in := slots.ListInput{TutorID: *tutorID, WindowStart: start, WindowEnd: end}
	if *onlyAvailable {
		in.Status = domain.SlotStatusAvailable
	}
	rows, err := a.client.ListSlots(ctx, in)
	if err != nil {
		return err
	}
	events, err := calendar.Events(rows, m, anchor, loc)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s view %s .. %s (%s)\n", m, start.Format(dateLayout), end.Add(-time.Nanosecond).Format(dateLayout), loc)
	printEvents(a.out, events, loc)
	return nil
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("create")
	tutorID := fs.String("tutor", "", "tutor id")
	startFlag := fs.String("start", "", "start time (RFC 3339)")
	endFlag := fs.String("end", "", "end time (RFC 3339)")
	comment := fs.String("comment", "", "optional comment")
	weekdays := fs.String("weekdays", "", "repeat on ISO weekdays, e.g. 1,3,5")
	weeks := fs.Int("weeks", 1, "number of weeks to repeat")
	tz := fs.String("tz", "UTC", "time zone the series keeps its wall-clock time in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	start, end, err := parseRange(*startFlag, *endFlag)
	if err != nil {
		return err
	}

	tutor := session.NewTutorCalendar(*tutorID, a.client, a.client, a.log)
	if *weekdays == "" {
		slot, err := tutor.Create(ctx, slots.CreateInput{TutorID: *tutorID, StartTime: start, EndTime: end, Comment: *comment})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "created slot %s\n", slot.ID)
		return nil
	}

	days, err := parseWeekdays(*weekdays)
	if err != nil {
		return err
	}
	created, err := tutor.CreateRecurring(ctx, slots.CreateRecurringInput{
		TutorID:   *tutorID,
		StartTime: start,
		EndTime:   end,
		ByWeekday: days,
		Weeks:     *weeks,
		TimeZone:  *tz,
		Comment:   *comment,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %d slots\n", len(created))
	return nil
}

func runReschedule(ctx context.Context, a *app, args []string) error {
	fs := newFlags("reschedule")
	slotFlag := fs.String("slot", "", "slot id")
	startFlag := fs.String("start", "", "new start time (RFC 3339)")
	endFlag := fs.String("end", "", "new end time (RFC 3339)")
	comment := fs.String("comment", "", "optional comment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := parseSlotID(*slotFlag)
	if err != nil {
		return err
	}
	start, end, err := parseRange(*startFlag, *endFlag)
	if err != nil {
		return err
	}

	moved, err := a.client.RescheduleSlot(ctx, slots.RescheduleInput{SlotID: id, StartTime: start, EndTime: end, Comment: *comment})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "slot %s now %s - %s\n", moved.ID, moved.StartTime.Local().Format(time.RFC3339), moved.EndTime.Local().Format(time.RFC3339))
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlags("delete")
	slotFlag := fs.String("slot", "", "slot id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := parseSlotID(*slotFlag)
	if err != nil {
		return err
	}
	deleted, err := a.client.DeleteSlot(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s slot %s\n", deleted.Status, deleted.ID)
	return nil
}

// runBook goes through a student session so the slot must be visible and
// available before the reservation is attempted.
func runBook(ctx context.Context, a *app, args []string) error {
	fs := newFlags("book")
	studentID := fs.String("student", "", "student id")
	tutorID := fs.String("tutor", "", "tutor id")
	slotFlag := fs.String("slot", "", "slot id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := parseSlotID(*slotFlag)
	if err != nil {
		return err
	}

	student := session.NewStudentCalendar(*studentID, *tutorID, a.client, a.client, a.client, a.log)
	if err := student.Refresh(ctx); err != nil {
		return err
	}
	res, err := student.Book(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrSlotNotInView) {
			return errors.New("that slot is not available for this tutor")
		}
		return err
	}

	fmt.Fprintf(a.out, "booked %s - %s (booking %s)\n",
		res.Slot.StartTime.Local().Format(time.RFC3339),
		res.Slot.EndTime.Local().Format(time.RFC3339),
		res.Booking.ID,
	)
	return nil
}

func runBookings(ctx context.Context, a *app, args []string) error {
	fs := newFlags("bookings")
	studentID := fs.String("student", "", "student id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bookings, err := a.client.ListBookings(ctx, *studentID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BOOKING\tSLOT\tTUTOR\tSTATUS\tCREATED")
	for _, b := range bookings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.SlotID, b.TutorID, b.Status, b.CreatedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}

// runWatch prints the student's view of a tutor's open slots every time it
// changes, until interrupted.
func runWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlags("watch")
	studentID := fs.String("student", "watcher", "student id")
	tutorID := fs.String("tutor", "", "tutor id")
	mode := fs.String("view", "week", "calendar view: day, week or month")
	tz := fs.String("tz", "Local", "time zone for the calendar window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := calendar.ParseMode(*mode)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("invalid -tz: %w", err)
	}

	student := session.NewStudentCalendar(*studentID, *tutorID, a.client, a.client, a.client, a.log)
	student.OnRefresh(func(rows []domain.AvailabilitySlot) {
		events, err := calendar.Events(rows, m, time.Now().In(loc), loc)
		if err != nil {
			a.log.Warn("render failed", slog.Any("err", err))
			return
		}
		fmt.Fprintf(a.out, "\n%s  %d open slots this %s\n", time.Now().In(loc).Format(time.TimeOnly), len(events), m)
		printEvents(a.out, events, loc)
	})
	if err := student.Start(ctx); err != nil {
		return err
	}
	defer student.Close()

	<-ctx.Done()
	return nil
}

func printEvents(out io.Writer, events []calendar.Event, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tDAY\tTIME\tMIN\tSTATUS\tCOMMENT")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s-%s\t%d\t%s\t%s\n",
			e.ID,
			e.Start.In(loc).Format("Mon 02 Jan"),
			e.Start.In(loc).Format("15:04"),
			e.End.In(loc).Format("15:04"),
			e.DurationMinutes,
			e.Title,
			e.Comment,
		)
	}
	_ = w.Flush()
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Now().In(loc), nil
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -start %q: want RFC 3339", start)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -end %q: want RFC 3339", end)
	}
	return s, e, nil
}

func parseSlotID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid -slot %q: want a UUID", s)
	}
	return id, nil
}

func parseWeekdays(s string) ([]int16, error) {
	parts := strings.Split(s, ",")
	out := make([]int16, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 || n > 7 {
			return nil, fmt.Errorf("invalid weekday %q: want 1 (Monday) to 7 (Sunday)", p)
		}
		out = append(out, int16(n))
	}
	return out, nil
}

// describe turns transport and domain errors into one line for the terminal.
func describe(err error) string {
	var rErr *reservations.ReservationError
	switch {
	case reservations.IsContention(err):
		return "Sorry, that slot was just taken. Please pick another one."
	case errors.As(err, &rErr) && rErr.State == reservations.StateFailed:
		return "We couldn't complete the booking. Please try again."
	case errors.Is(err, store.ErrNotFound):
		return "slot not found"
	}
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}
