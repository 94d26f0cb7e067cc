package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisChannelPrefix = "tutorly:availability:"

	redisHealthCheckInterval = 3 * time.Second
)

func RedisChannelName(tutorID string) string {
	return redisChannelPrefix + tutorID
}

// Redis carries changes over Redis pub/sub, one channel per tutor.
type Redis struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

var _ Channel = (*Redis)(nil)

func NewRedisClient(addr, password string, db, poolSize int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
}

func NewRedis(client *redis.Client, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{
		client: client,
		log:    log.With(slog.String("component", "live.redis")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Redis) Publish(ctx context.Context, tutorID string) error {
	if tutorID == "" {
		return ErrTutorRequired
	}
	payload, err := json.Marshal(Change{TutorID: tutorID, At: r.now()})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, RedisChannelName(tutorID), payload).Err(); err != nil {
		return fmt.Errorf("publish availability change: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, tutorID string, onChange func(Change)) (Subscription, error) {
	if err := validateSubscribe(tutorID, onChange); err != nil {
		return nil, err
	}

	ps := r.client.Subscribe(ctx, RedisChannelName(tutorID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe availability changes: %w", err)
	}

	sub := &redisSubscription{ps: ps, done: make(chan struct{})}
	msgs := ps.ChannelWithSubscriptions(redis.WithChannelHealthCheckInterval(redisHealthCheckInterval))
	go func() {
		defer close(sub.done)
		for msg := range msgs {
			if c, ok := r.handle(tutorID, msg); ok {
				onChange(c)
			}
		}
	}()

	sub.mu.Lock()
	sub.stop = context.AfterFunc(ctx, func() { _ = sub.Close() })
	sub.mu.Unlock()
	return sub, nil
}

// handle turns a pub/sub delivery into a change. The first subscribe
// confirmation is consumed by Subscribe, so any later one means go-redis
// reconnected and resubscribed; publishes sent while the connection was down
// are lost, so the subscriber is told to refresh.
func (r *Redis) handle(tutorID string, msg any) (Change, bool) {
	switch m := msg.(type) {
	case *redis.Message:
		return r.decode(m), true
	case *redis.Subscription:
		if m.Kind != "subscribe" {
			return Change{}, false
		}
		r.log.Info("subscription re-established", slog.String("tutor_id", tutorID), slog.String("channel", m.Channel))
		return Change{TutorID: tutorID, At: r.now()}, true
	default:
		return Change{}, false
	}
}

// decode falls back to the channel name when the payload is not a Change.
func (r *Redis) decode(msg *redis.Message) Change {
	var c Change
	if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil || c.TutorID == "" {
		r.log.Warn("undecodable availability change", slog.String("channel", msg.Channel))
		return Change{TutorID: strings.TrimPrefix(msg.Channel, redisChannelPrefix), At: r.now()}
	}
	return c
}

type redisSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error

	mu   sync.Mutex
	stop func() bool
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}
