package grpc

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// ClientIDHeader keys the per-client rate limit. Callers without it are
// limited by peer address.
const ClientIDHeader = "x-client-id"

type RPCRecorder interface {
	ObserveRPC(method, code string, elapsed time.Duration)
}

type RateLimitRecorder interface {
	ObserveRateLimited()
}

// RequestTimeoutInterceptor applies timeout to calls that arrive without a
// deadline.
func RequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func MetricsUnaryInterceptor(rec RPCRecorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		rec.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

func MetricsStreamInterceptor(rec RPCRecorder) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		rec.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
		return err
	}
}

const limiterIdleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client key. Buckets untouched for
// longer than the idle TTL are dropped; the TTL is never shorter than a full
// refill, so a dropped bucket would have been full anyway.
type RateLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
	metrics  RateLimitRecorder

	idle      time.Duration
	lastSweep atomic.Int64
	now       func() time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen atomic.Int64
}

func NewRateLimiter(rps float64, burst int, metrics RateLimitRecorder) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	idle := limiterIdleTTL
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	l := &RateLimiter{rps: rate.Limit(rps), burst: burst, metrics: metrics, idle: idle, now: time.Now}
	l.lastSweep.Store(l.now().UnixNano())
	return l
}

func (l *RateLimiter) entry(key string) *limiterEntry {
	if v, ok := l.limiters.Load(key); ok {
		if e, ok := v.(*limiterEntry); ok {
			return e
		}
	}

	e := &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
	actual, loaded := l.limiters.LoadOrStore(key, e)
	if loaded {
		if actualEntry, ok := actual.(*limiterEntry); ok {
			return actualEntry
		}
	}
	return e
}

func (l *RateLimiter) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	now := l.now()
	e := l.entry(key)
	e.seen.Store(now.UnixNano())
	l.sweep(now)
	return e.lim.AllowN(now, 1)
}

// sweep runs at most once per idle TTL; one caller wins the CAS and walks
// the map.
func (l *RateLimiter) sweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(l.idle) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-l.idle).UnixNano()
	l.limiters.Range(func(key, v any) bool {
		if e, ok := v.(*limiterEntry); ok && e.seen.Load() < cutoff {
			l.limiters.CompareAndDelete(key, v)
		}
		return true
	})
}

func (l *RateLimiter) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !l.Allow(clientKey(ctx)) {
			if l.metrics != nil {
				l.metrics.ObserveRateLimited()
			}
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func clientKey(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(ClientIDHeader); len(values) > 0 {
			if v := strings.TrimSpace(values[0]); v != "" {
				return v
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}
	return "unknown"
}
