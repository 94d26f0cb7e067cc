package live

import (
	"context"
	"sync"
	"time"
)

// Bus is an in-process Channel. Handlers run synchronously on the publishing
// goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func(Change)
	now    func() time.Time
}

var _ Channel = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[uint64]func(Change)),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (b *Bus) Subscribe(ctx context.Context, tutorID string, onChange func(Change)) (Subscription, error) {
	if err := validateSubscribe(tutorID, onChange); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[tutorID] == nil {
		b.subs[tutorID] = make(map[uint64]func(Change))
	}
	b.subs[tutorID][id] = onChange
	b.mu.Unlock()

	sub := &busSubscription{bus: b, tutorID: tutorID, id: id}
	sub.mu.Lock()
	sub.stop = context.AfterFunc(ctx, func() { _ = sub.Close() })
	sub.mu.Unlock()
	return sub, nil
}

func (b *Bus) Publish(ctx context.Context, tutorID string) error {
	if tutorID == "" {
		return ErrTutorRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.Deliver(Change{TutorID: tutorID, At: b.now()})
	return nil
}

// Deliver fans c out to the subscribers of c.TutorID.
func (b *Bus) Deliver(c Change) {
	b.mu.RLock()
	handlers := make([]func(Change), 0, len(b.subs[c.TutorID]))
	for _, h := range b.subs[c.TutorID] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(c)
	}
}

// Broadcast signals every subscribed tutor. Used after a listener reconnects,
// when notifications may have been missed.
func (b *Bus) Broadcast(at time.Time) {
	b.mu.RLock()
	tutors := make([]string, 0, len(b.subs))
	for tutorID := range b.subs {
		tutors = append(tutors, tutorID)
	}
	b.mu.RUnlock()

	for _, tutorID := range tutors {
		b.Deliver(Change{TutorID: tutorID, At: at})
	}
}

func (b *Bus) Subscribers(tutorID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[tutorID])
}

func (b *Bus) remove(tutorID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[tutorID], id)
	if len(b.subs[tutorID]) == 0 {
		delete(b.subs, tutorID)
	}
}

type busSubscription struct {
	bus     *Bus
	tutorID string
	id      uint64
	once    sync.Once

	mu   sync.Mutex
	stop func() bool
}

func (s *busSubscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.bus.remove(s.tutorID, s.id)
	})
	return nil
}
