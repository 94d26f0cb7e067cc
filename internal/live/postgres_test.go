package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListenConn struct {
	notes chan string
	execs []string
}

func (c *fakeListenConn) Exec(ctx context.Context, sql string) error {
	c.execs = append(c.execs, sql)
	return nil
}

func (c *fakeListenConn) WaitForNotification(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case n, ok := <-c.notes:
		if !ok {
			return "", errors.New("connection reset")
		}
		return n, nil
	}
}

func (c *fakeListenConn) Close(ctx context.Context) error { return nil }

func TestPostgresListenerReconnectsAndBroadcasts(t *testing.T) {
	p := NewPostgres("postgres://unused", nil,
		RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	first := &fakeListenConn{notes: make(chan string, 2)}
	first.notes <- "t1"
	first.notes <- "t2"
	close(first.notes)
	second := &fakeListenConn{notes: make(chan string)}

	var dials atomic.Int32
	p.connect = func(ctx context.Context, dsn string) (listenConn, error) {
		switch dials.Add(1) {
		case 1:
			return first, nil
		case 2:
			return nil, errors.New("connection refused")
		default:
			return second, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &changeRecorder{}
	sub, err := p.Subscribe(ctx, "t1", rec.record)
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// One change from the notification, one from the post-reconnect broadcast.
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	for _, c := range rec.snapshot() {
		assert.Equal(t, "t1", c.TutorID)
	}
	assert.Equal(t, int32(3), dials.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	assert.Equal(t, []string{`LISTEN "availability_changed"`}, first.execs)
}

func TestPostgresRunStopsWhileWaitingToReconnect(t *testing.T) {
	p := NewPostgres("postgres://unused", nil,
		RetryPolicy{InitialDelay: time.Hour},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.connect = func(ctx context.Context, dsn string) (listenConn, error) {
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestPostgresPublishRequiresTutor(t *testing.T) {
	p := NewPostgres("postgres://unused", nil, RetryPolicy{}, nil)
	require.ErrorIs(t, p.Publish(context.Background(), ""), ErrTutorRequired)
}
