package calendar

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tutorly/backend/internal/domain"
)

// View is a session's local copy of slots. It is advisory: the store stays the
// source of truth and the view is replaced wholesale after every fetch.
type View struct {
	mu    sync.RWMutex
	slots map[uuid.UUID]domain.AvailabilitySlot
}

func NewView() *View {
	return &View{slots: make(map[uuid.UUID]domain.AvailabilitySlot)}
}

func (v *View) Replace(slots []domain.AvailabilitySlot) {
	next := make(map[uuid.UUID]domain.AvailabilitySlot, len(slots))
	for _, s := range slots {
		next[s.ID] = s
	}
	v.mu.Lock()
	v.slots = next
	v.mu.Unlock()
}

func (v *View) Append(slots ...domain.AvailabilitySlot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, s := range slots {
		v.slots[s.ID] = s
	}
}

func (v *View) Remove(id uuid.UUID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.slots[id]; !ok {
		return false
	}
	delete(v.slots, id)
	return true
}

func (v *View) Lookup(id uuid.UUID) (domain.AvailabilitySlot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.slots[id]
	return s, ok
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.slots)
}

// Slots returns a copy ordered by start time, then id.
func (v *View) Slots() []domain.AvailabilitySlot {
	v.mu.RLock()
	out := make([]domain.AvailabilitySlot, 0, len(v.slots))
	for _, s := range v.slots {
		out = append(out, s)
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (v *View) Events(mode Mode, anchor time.Time, loc *time.Location) ([]Event, error) {
	return Events(v.Slots(), mode, anchor, loc)
}
