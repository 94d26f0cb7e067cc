// Package session holds the per-user calendar views a client renders. Views
// are advisory copies refreshed from the store on every live change signal.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tutorly/backend/internal/domain"
	"tutorly/backend/internal/live"
	"tutorly/backend/internal/service/reservations"
	"tutorly/backend/internal/service/slots"
)

var ErrSlotNotInView = errors.New("slot is not in the current calendar view")

// SlotReader is served by *slots.Service and the gRPC client.
type SlotReader interface {
	ListSlots(ctx context.Context, in slots.ListInput) ([]domain.AvailabilitySlot, error)
}

type SlotWriter interface {
	SlotReader
	CreateSlot(ctx context.Context, in slots.CreateInput) (domain.AvailabilitySlot, error)
	CreateRecurringSlots(ctx context.Context, in slots.CreateRecurringInput) ([]domain.AvailabilitySlot, error)
	DeleteSlot(ctx context.Context, slotID uuid.UUID) (domain.AvailabilitySlot, error)
	RescheduleSlot(ctx context.Context, in slots.RescheduleInput) (domain.AvailabilitySlot, error)
}

// Reserver is served by *reservations.Service and the gRPC client.
type Reserver interface {
	Reserve(ctx context.Context, in reservations.ReserveInput) (reservations.Result, error)
}

// follower subscribes to one tutor's changes and runs refresh on a single
// worker goroutine. Signals arriving while a refresh is pending collapse into
// it.
type follower struct {
	channel live.Subscriber
	tutorID string
	refresh func(ctx context.Context) error
	log     *slog.Logger

	mu      sync.Mutex
	sub     live.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	pending chan struct{}
}

func (f *follower) start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		return errors.New("session already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	f.pending = make(chan struct{}, 1)
	f.done = make(chan struct{})

	sub, err := f.channel.Subscribe(ctx, f.tutorID, func(live.Change) {
		select {
		case f.pending <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		return err
	}
	f.sub = sub
	f.cancel = cancel

	go f.run(ctx)
	return nil
}

func (f *follower) run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.pending:
			if err := f.refresh(ctx); err != nil && ctx.Err() == nil {
				f.log.Warn("refresh after change failed", slog.Any("err", err))
			}
		}
	}
}

func (f *follower) close() error {
	f.mu.Lock()
	sub, cancel, done := f.sub, f.cancel, f.done
	f.sub, f.cancel = nil, nil
	f.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Close()
	cancel()
	<-done
	return err
}
