package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/uptrace/bun"
)

// NotifyChannel is the LISTEN/NOTIFY channel; the payload is the tutor id.
const NotifyChannel = "availability_changed"

// Postgres publishes with pg_notify and keeps one dedicated listener
// connection whose notifications are fanned out through a Bus.
type Postgres struct {
	dsn    string
	db     *bun.DB
	bus    *Bus
	policy RetryPolicy
	log    *slog.Logger
	now    func() time.Time

	// connect is replaceable in tests.
	connect func(ctx context.Context, dsn string) (listenConn, error)
}

type listenConn interface {
	Exec(ctx context.Context, sql string) error
	WaitForNotification(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

var _ Channel = (*Postgres)(nil)

func NewPostgres(dsn string, db *bun.DB, policy RetryPolicy, log *slog.Logger) *Postgres {
	if log == nil {
		log = slog.Default()
	}
	return &Postgres{
		dsn:     dsn,
		db:      db,
		bus:     NewBus(),
		policy:  policy,
		log:     log.With(slog.String("component", "live.postgres")),
		now:     func() time.Time { return time.Now().UTC() },
		connect: dialListenConn,
	}
}

func (p *Postgres) Subscribe(ctx context.Context, tutorID string, onChange func(Change)) (Subscription, error) {
	return p.bus.Subscribe(ctx, tutorID, onChange)
}

func (p *Postgres) Publish(ctx context.Context, tutorID string) error {
	if tutorID == "" {
		return ErrTutorRequired
	}
	if _, err := p.db.NewRaw("SELECT pg_notify(?, ?)", NotifyChannel, tutorID).Exec(ctx); err != nil {
		return fmt.Errorf("notify availability change: %w", err)
	}
	return nil
}

// Run listens until ctx is done, reconnecting with backoff. After every
// reconnect all subscribers are signalled, since notifications sent while the
// listener was down are lost.
func (p *Postgres) Run(ctx context.Context) error {
	attempt := 0
	connectedBefore := false

	for {
		err := p.listen(ctx, func() {
			if connectedBefore {
				p.bus.Broadcast(p.now())
			}
			connectedBefore = true
			attempt = 0
		})
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		delay := p.policy.NextDelay(attempt)
		p.log.Warn("listener disconnected",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
		)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

func (p *Postgres) listen(ctx context.Context, onConnected func()) error {
	conn, err := p.connect(ctx, p.dsn)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return err
	}
	p.log.Info("listening", slog.String("channel", NotifyChannel))
	onConnected()

	for {
		tutorID, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if tutorID == "" {
			continue
		}
		p.bus.Deliver(Change{TutorID: tutorID, At: p.now()})
	}
}

type pgxListenConn struct {
	conn *pgx.Conn
}

func dialListenConn(ctx context.Context, dsn string) (listenConn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pgxListenConn{conn: conn}, nil
}

func (c pgxListenConn) Exec(ctx context.Context, sql string) error {
	_, err := c.conn.Exec(ctx, sql)
	return err
}

func (c pgxListenConn) WaitForNotification(ctx context.Context) (string, error) {
	n, err := c.conn.WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	if n.Channel != NotifyChannel {
		return "", nil
	}
	return n.Payload, nil
}

func (c pgxListenConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
