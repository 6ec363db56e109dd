package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/slotkeeper/libs/config"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/libs/grpcx"
	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
	"github.com/md-rashed-zaman/slotkeeper/libs/runtime"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage/memory"
)

// store is everything the committer and the catalog need from persistence.
type store interface {
	booking.Store
	booking.CatalogStore
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var checks []runtime.ReadyCheck
	st, closeStore, check := openStore(ctx, logger)
	defer closeStore()
	if check.Check != nil {
		checks = append(checks, check)
	}

	queue := notify.NewQueue(config.Int("NOTIFY_QUEUE_SIZE", notify.DefaultQueueSize), logger)
	dispatcherOpts := []notify.Option{
		notify.WithRetry(config.Int("NOTIFY_MAX_ATTEMPTS", 5), config.Duration("NOTIFY_RETRY_INITIAL", 200*time.Millisecond)),
	}
	if brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")); len(brokers) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		topic := config.String("KAFKA_TOPIC_BOOKING_CREATED", notify.EventBookingCreated)
		dispatcherOpts = append(dispatcherOpts, notify.WithSink(notify.NewKafkaSink(writer, topic)))
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		logger.Info("booking events enabled (kafka)", "topic", topic)
	} else {
		dispatcherOpts = append(dispatcherOpts, notify.WithSink(notify.LogSink{Logger: logger}))
		logger.Info("booking events enabled (log)")
	}
	if host := strings.TrimSpace(config.String("SMTP_HOST", "")); host != "" {
		dispatcherOpts = append(dispatcherOpts, notify.WithEmail(notify.NewSMTPEmailSink(
			host,
			config.String("SMTP_PORT", "25"),
			config.String("SMTP_FROM", ""),
		)))
		logger.Info("confirmation emails enabled", "smtp_host", host)
	}
	dispatcherOpts = append(dispatcherOpts, notify.WithDrainTimeout(config.Duration("NOTIFY_DRAIN_TIMEOUT", 15*time.Second)))
	dispatcher := notify.NewDispatcher(queue, logger, dispatcherOpts...)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(ctx)
	}()

	resolver := availability.NewResolver(st,
		availability.WithInterval(time.Duration(config.Int("SLOT_INTERVAL_MINUTES", 30))*time.Minute),
	)
	committer := booking.NewCommitter(st, resolver, logger, booking.WithNotifier(queue))
	catalog := booking.NewCatalog(st, logger)

	rateLimitMW, redisCheck, closeRedis := rateLimit(logger)
	defer closeRedis()
	if redisCheck.Check != nil {
		checks = append(checks, redisCheck)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(resolver, committer, catalog, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,X-Tenant-Id,"+handlers.IdempotencyKeyHeader),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10))*time.Second),
		httpx.OnPrefix(handlers.PublicPrefix, rateLimitMW),
	)
	handler = otelhttp.NewHandler(handler, "booking")

	grpcServer, _ := grpcx.NewServer(logger)
	if err := runtime.ServeGRPC(ctx, grpcServer, ":"+grpcPort, logger); err != nil {
		logger.Error("grpc listen failed", "err", err)
		return
	}

	runtime.ServeHTTP(ctx, &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}, logger, 10*time.Second)

	// No request can enqueue any more; let the dispatcher flush the rest.
	queue.Close()
	<-dispatched
	logger.Info("notification dispatcher stopped")
}

// rateLimit guards the public routes with a Redis-backed limiter when
// REDIS_ADDR is set, and an in-process one otherwise.
func rateLimit(logger *slog.Logger) (httpx.Middleware, runtime.ReadyCheck, func()) {
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		logger.Info("public rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
		return httpx.NewRateLimiter(limitPerMinute, time.Minute, httpx.TenantClientKey).Middleware(), runtime.ReadyCheck{}, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:slots"), httpx.TenantClientKey)
	logger.Info("public rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
		runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)},
		func() { _ = rdb.Close() }
}

// openStore selects the persistence backend from STORE_DRIVER.
func openStore(ctx context.Context, logger *slog.Logger) (store, func(), runtime.ReadyCheck) {
	driver := strings.ToLower(config.String("STORE_DRIVER", "postgres"))
	if driver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, runtime.ReadyCheck{}
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	if config.Bool("DB_MIGRATE", true) {
		if err := db.Migrate(dbURL, storage.Migrations, storage.MigrationsDir); err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	return storage.NewStore(pool), pool.Close, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)}
}
