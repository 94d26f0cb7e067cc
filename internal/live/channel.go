// Package live carries "availability changed" signals scoped to a tutor.
// A signal never describes what changed; consumers re-run their full fetch.
package live

import (
	"context"
	"errors"
	"time"
)

var ErrTutorRequired = errors.New("tutor_id is required")

type Change struct {
	TutorID string    `json:"tutor_id"`
	At      time.Time `json:"at"`
}

// Subscription stays active until Close is called or the context passed to
// Subscribe is done.
type Subscription interface {
	Close() error
}

// Subscriber is implemented by every Channel and by the gRPC client.
// onChange may be called from any goroutine, must not block and must not
// close its own subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, tutorID string, onChange func(Change)) (Subscription, error)
}

// Channel is implemented by Bus, Redis and Postgres.
type Channel interface {
	Subscriber
	Publish(ctx context.Context, tutorID string) error
}

func validateSubscribe(tutorID string, onChange func(Change)) error {
	if tutorID == "" {
		return ErrTutorRequired
	}
	if onChange == nil {
		return errors.New("onChange is required")
	}
	return nil
}
