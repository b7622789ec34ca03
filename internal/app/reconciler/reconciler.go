// Package reconciler собирает процесс сверки ссылок абонентов: потребители событий удаления
// потоков и серверов, периодическая сверка и служебный HTTP-сервер с health и метриками.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/subscriber-service/internal/cache"
	"github.com/magabrotheeeer/subscriber-service/internal/config"
	"github.com/magabrotheeeer/subscriber-service/internal/http/handlers/health"
	"github.com/magabrotheeeer/subscriber-service/internal/lib/password"
	"github.com/magabrotheeeer/subscriber-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscriber-service/internal/lib/sl"
	"github.com/magabrotheeeer/subscriber-service/internal/metrics"
	recservice "github.com/magabrotheeeer/subscriber-service/internal/services/reconciler"
	subservice "github.com/magabrotheeeer/subscriber-service/internal/services/subscriber"
)

const handlerTimeout = 30 * time.Second

// App процесс сверки.
type App struct {
	server     *http.Server
	reconciler *recservice.ReconcilerService
	conn       *amqp.Connection
	ch         *amqp.Channel
	closeStore func() error
	cache      *cache.Cache
	cfg        config.RabbitMQ
	logger     *slog.Logger
}

// New подключает хранилище, кеш и брокер и собирает сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	opts, err := serviceOptions(cfg.Subscriber)
	if err != nil {
		return nil, err
	}
	hasher, err := password.New(cfg.Subscriber.Hasher)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	checks := map[string]health.Check{"storage": store.Ping}

	var redisCache *cache.Cache
	deps := subservice.Deps{
		Repo:    store,
		Catalog: store,
		Hasher:  hasher,
		Log:     logger,
	}
	if cfg.RedisConnection.AddressRedis != "" {
		redisCache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			_ = closeStore()
			return nil, fmt.Errorf("cache not initialized: %w", err)
		}
		deps.Cache = redisCache
		checks["redis"] = redisCache.Ping
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		closeResources(nil, nil, redisCache, closeStore, logger)
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	queues := rabbitmq.DeletionQueues(cfg.RabbitMQ.StreamsQueue, cfg.RabbitMQ.ServersQueue)
	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Exchange, queues)
	if err != nil {
		closeResources(nil, conn, redisCache, closeStore, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	checks["rabbitmq"] = func(context.Context) error {
		if conn.IsClosed() {
			return amqp.ErrClosed
		}
		return nil
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	deps.Events = rabbitmq.NewPublisher(ch, cfg.RabbitMQ.Exchange)
	deps.Metrics = m
	subscriberService := subservice.NewSubscriberService(deps, opts)

	limiter := rate.NewLimiter(rate.Limit(cfg.Reconciler.RatePerSecond), max(cfg.Reconciler.Burst, 1))
	reconcilerService := recservice.NewReconcilerService(store, store, subscriberService,
		limiter, m, logger, cfg.Reconciler.SweepInterval)

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer)
	router.Get("/healthz", health.New(logger, checks).ServeHTTP)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.OpsServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.OpsServer.Timeout,
		WriteTimeout: cfg.OpsServer.Timeout,
		IdleTimeout:  cfg.OpsServer.IdleTimeout,
	}

	return &App{
		server:     srv,
		reconciler: reconcilerService,
		conn:       conn,
		ch:         ch,
		closeStore: closeStore,
		cache:      redisCache,
		cfg:        cfg.RabbitMQ,
		logger:     logger,
	}, nil
}

// Run запускает потребителей, сверку и служебный сервер и ждёт отмены ctx.
func (a *App) Run(ctx context.Context) error {
	consumers := []struct {
		queue   string
		handler func(context.Context, []byte) error
	}{
		{queue: a.cfg.StreamsQueue, handler: a.reconciler.HandleStreamDeleted},
		{queue: a.cfg.ServersQueue, handler: a.reconciler.HandleServerDeleted},
	}
	for _, c := range consumers {
		handle := c.handler
		err := rabbitmq.ConsumerMessage(ctx, a.ch, c.queue, a.logger, func(body []byte) error {
			hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			defer cancel()
			return handle(hctx, body)
		})
		if err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", c.queue), sl.Err(err))
			a.shutdown()
			return err
		}
	}

	go a.reconciler.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("ops server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down reconciler gracefully")
		runErr = a.server.Shutdown(timeoutCtx)
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	closeResources(a.ch, a.conn, a.cache, a.closeStore, a.logger)
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, c *cache.Cache, closeStore func() error, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if c != nil {
		if err := c.Close(); err != nil {
			logger.Error("failed to close cache", sl.Err(err))
		}
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			logger.Error("failed to close storage", sl.Err(err))
		}
	}
}
