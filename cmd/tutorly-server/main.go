package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"google.golang.org/grpc"

	"tutorly/backend/internal/config"
	"tutorly/backend/internal/live"
	"tutorly/backend/internal/metrics"
	"tutorly/backend/internal/service/reservations"
	"tutorly/backend/internal/service/slots"
	"tutorly/backend/internal/store"
	"tutorly/backend/internal/store/memory"
	"tutorly/backend/internal/store/postgres"
	grpcTransport "tutorly/backend/internal/transport/grpc"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "tutorly-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "tutorly-server"),
	)
	slog.SetDefault(log)

	log.Info(
		"starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("live_driver", cfg.LiveDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo store.Store
		db   *bun.DB
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		repo = memory.New()
	default:
		db, err = openDatabase(ctx, log, cfg)
		if err != nil {
			os.Exit(1)
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()
		repo = postgres.NewRepo(db)
	}

	channel, closeChannel, err := openChannel(ctx, log, cfg, db)
	if err != nil {
		log.Error("live channel setup failed", slog.Any("err", err), slog.String("live_driver", cfg.LiveDriver))
		os.Exit(1)
	}
	defer closeChannel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	slotsSvc := slots.NewService(repo, channel, m, log)
	reservationsSvc := reservations.NewService(repo, channel, m, log)
	availability := grpcTransport.NewAvailabilityServer(slotsSvc, channel, log)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcTransport.MetricsUnaryInterceptor(m),
			grpcTransport.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m).UnaryInterceptor(),
			grpcTransport.RequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
		),
		grpc.ChainStreamInterceptor(grpcTransport.MetricsStreamInterceptor(m)),
	)
	grpcTransport.RegisterAvailabilityServiceServer(grpcServer, availability)
	grpcTransport.RegisterReservationServiceServer(grpcServer, grpcTransport.NewReservationServer(reservationsSvc, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	metricsServer := startMetricsServer(log, cfg.MetricsAddr, m.Handler())

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		availability.Shutdown()
		shutdown(log, grpcServer, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server stopped unexpectedly", slog.Any("err", err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", slog.Any("err", err))
		}
	}
}

func openDatabase(ctx context.Context, log *slog.Logger, cfg config.Config) (*bun.DB, error) {
	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, err
	}

	if cfg.DBMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("database migration failed", slog.Any("err", err))
			_ = postgres.Close(db)
			return nil, err
		}
		version, err := postgres.MigrationVersion(ctx, db)
		if err != nil {
			log.Warn("migration version lookup failed", slog.Any("err", err))
		}
		log.Info("database migrated", slog.Int64("version", version))
	}
	return db, nil
}

// openChannel builds the change channel for cfg.LiveDriver. The returned
// close function stops background listeners and releases connections.
func openChannel(ctx context.Context, log *slog.Logger, cfg config.Config, db *bun.DB) (live.Channel, func(), error) {
	switch cfg.LiveDriver {
	case config.LiveDriverMemory:
		return live.NewBus(), func() {}, nil

	case config.LiveDriverRedis:
		client := live.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPoolSize)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		log.Info("redis connected", slog.String("redis_addr", cfg.RedisAddr))
		return live.NewRedis(client, log), func() {
			if err := client.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}, nil

	default:
		pg := live.NewPostgres(cfg.DatabaseURL, db, live.RetryPolicy{
			InitialDelay:  cfg.LiveReconnectInitial,
			MaxDelay:      cfg.LiveReconnectMax,
			BackoffFactor: 2,
		}, log)
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := pg.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("postgres listener stopped", slog.Any("err", err))
			}
		}()
		return pg, func() {
			cancel()
			<-done
		}, nil
	}
}

func startMetricsServer(log *slog.Logger, addr string, handler http.Handler) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", slog.Any("err", err), slog.String("metrics_addr", addr))
		}
	}()
	log.Info("metrics server started", slog.String("metrics_addr", addr))
	return srv
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
