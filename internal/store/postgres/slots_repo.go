package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/store"
)

type Repo struct {
	db    *bun.DB
	clock func() time.Time
}

var _ store.Store = (*Repo)(nil)

func NewRepo(db *bun.DB) *Repo {
	return &Repo{db: db, clock: func() time.Time { return time.Now().UTC() }}
}

func (r *Repo) ListSlots(ctx context.Context, f store.SlotFilter) ([]domain.AvailabilitySlot, error) {
	rows := make([]domain.AvailabilitySlot, 0)
	q := r.db.NewSelect().Model(&rows)
	q = applySlotFilter(q, f)
	if err := q.OrderExpr("start_time ASC, id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func applySlotFilter(q *bun.SelectQuery, f store.SlotFilter) *bun.SelectQuery {
	if f.TutorID != "" {
		q = q.Where("tutor_id = ?", f.TutorID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.WindowEnd.IsZero() {
		q = q.Where("start_time < ?", f.WindowEnd)
	}
	if !f.WindowStart.IsZero() {
		q = q.Where("end_time > ?", f.WindowStart)
	}
	return q
}

func (r *Repo) GetSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error) {
	var slot domain.AvailabilitySlot
	err := r.db.NewSelect().Model(&slot).Where("id = ?", slotID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.AvailabilitySlot{}, translateError(err)
	}
	return slot, nil
}

func (r *Repo) InsertSlots(ctx context.Context, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
	if len(slots) == 0 {
		return []domain.AvailabilitySlot{}, nil
	}

	rows := make([]domain.AvailabilitySlot, 0, len(slots))
	for _, s := range slots {
		if err := s.Validate(); err != nil {
			return nil, store.ErrInvalidSlot
		}
		if s.Status != "" && !s.Status.Valid() {
			return nil, store.ErrInvalidSlot
		}
		s.StartTime = s.StartTime.UTC()
		s.EndTime = s.EndTime.UTC()
		rows = append(rows, s)
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockTutorCalendar(ctx, tx, rows[0].TutorID); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&rows).Returning("*").Exec(ctx)
		return err
	})
	if err != nil {
		return nil, translateError(err)
	}
	return rows, nil
}

func (r *Repo) DeleteSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error) {
	var slot domain.AvailabilitySlot
	res, err := r.db.NewDelete().
		Model(&slot).
		Where("id = ?", slotID).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.AvailabilitySlot{}, translateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	if affected == 0 {
		return domain.AvailabilitySlot{}, store.ErrNotFound
	}
	return slot, nil
}

// SwapSlotStatus is a single conditional UPDATE. Postgres row locking makes
// concurrent swaps on the same row serialize, so at most one caller observes
// a match for any given prior status.
func (r *Repo) SwapSlotStatus(ctx context.Context, slotID uuid.UUID, from, to domain.SlotStatus) (domain.AvailabilitySlot, bool, error) {
	var slot domain.AvailabilitySlot
	res, err := r.db.NewUpdate().
		Model(&slot).
		Set("status = ?", to).
		Set("updated_at = ?", r.clock()).
		Where("id = ?", slotID).
		Where("status = ?", from).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AvailabilitySlot{}, false, nil
		}
		return domain.AvailabilitySlot{}, false, translateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.AvailabilitySlot{}, false, err
	}
	if affected == 0 {
		return domain.AvailabilitySlot{}, false, nil
	}
	return slot, true, nil
}

func (r *Repo) RescheduleSlot(ctx context.Context, slotID uuid.UUID, start, end time.Time, comment string) (domain.AvailabilitySlot, error) {
	if !end.After(start) {
		return domain.AvailabilitySlot{}, store.ErrInvalidSlot
	}
	start, end = start.UTC(), end.UTC()

	var out domain.AvailabilitySlot
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var current domain.AvailabilitySlot
		if err := tx.NewSelect().Model(&current).Where("id = ?", slotID).Limit(1).Scan(ctx); err != nil {
			return err
		}
		if err := lockTutorCalendar(ctx, tx, current.TutorID); err != nil {
			return err
		}

		overlapping, err := tx.NewSelect().
			Model((*domain.AvailabilitySlot)(nil)).
			Where("tutor_id = ?", current.TutorID).
			Where("id <> ?", slotID).
			Where("start_time < ?", end).
			Where("end_time > ?", start).
			Count(ctx)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return store.ErrConflict
		}

		res, err := tx.NewUpdate().
			Model(&out).
			Set("start_time = ?", start).
			Set("end_time = ?", end).
			Set("comment = ?", nullString(comment)).
			Set("updated_at = ?", r.clock()).
			Where("id = ?", slotID).
			Where("status = ?", domain.SlotStatusAvailable).
			Returning("*").
			Exec(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrConflict
			}
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrConflict
		}
		return nil
	})
	if err != nil {
		return domain.AvailabilitySlot{}, translateError(err)
	}
	return out, nil
}

func (r *Repo) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := b
	if _, err := r.db.NewInsert().Model(&m).Returning("*").Exec(ctx); err != nil {
		return domain.Booking{}, translateError(err)
	}
	return m, nil
}

func (r *Repo) ListBookings(ctx context.Context, studentID string) ([]domain.Booking, error) {
	rows := make([]domain.Booking, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where("student_id = ?", studentID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func lockTutorCalendar(ctx context.Context, tx bun.Tx, tutorID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", tutorID).Exec(ctx)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrConflict
		case "23503":
			return store.ErrNotFound
		case "23514":
			return store.ErrInvalidSlot
		}
	}
	return err
}
