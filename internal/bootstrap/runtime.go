// Package bootstrap connects the backing services and wires the long-running
// background workers shared by the API server and the maintenance commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chirp/internal/cache"
	"chirp/internal/config"
	"chirp/internal/database"
	"chirp/internal/events"
	"chirp/internal/identity"
	"chirp/internal/middleware"
	"chirp/internal/notifications"
	"chirp/internal/observability"
	"chirp/internal/repository"
	"chirp/internal/scheduler"
	"chirp/internal/service"
	"chirp/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const serviceName = "chirp-api"

// Options control runtime initialization behavior.
type Options struct {
	// Events starts the outbound event pipeline.
	Events bool
	// Scheduler registers the maintenance cron jobs.
	Scheduler bool
	// Tracing installs the OpenTelemetry exporter from configuration.
	Tracing bool
}

// Runtime owns every connection the process opened.
type Runtime struct {
	Config     *config.Config
	DB         *gorm.DB
	Mongo      *mongo.Client
	MongoDB    *mongo.Database
	Redis      *redis.Client
	Cache      cache.Store
	Users      identity.Store
	Notifier   *notifications.Notifier
	Hub        *notifications.Hub
	Dispatcher *events.Dispatcher
	Blobs      *storage.LocalStore
	Scheduler  *scheduler.Scheduler

	publisher events.Publisher
	consumer  *events.AMQPConsumer
	shutdowns []func(context.Context) error
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	log       *slog.Logger
}

// InitRuntime connects Postgres, MongoDB and Redis and prepares the optional
// subsystems selected by opts. Redis and memcached are optional: the runtime
// degrades to uncached reads and local-only delivery without them.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	observability.ConfigureLogging(observability.LoggingFor(cfg.Env))
	rt := &Runtime{Config: cfg, log: middleware.Logger.With(slog.String("component", "runtime"))}

	if opts.Tracing {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:  serviceName,
			Environment:  cfg.Env,
			Enabled:      cfg.TracingEnabled,
			Exporter:     cfg.TracingExporter,
			OTLPEndpoint: cfg.TracingOTLPEndpoint,
			SamplerRatio: cfg.TracingSampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracing init failed: %w", err)
		}
		rt.shutdowns = append(rt.shutdowns, shutdown)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.DB = db

	client, mdb, err := database.ConnectMongo(ctx, cfg)
	if err != nil {
		_ = rt.closeDB()
		return nil, fmt.Errorf("identity store connection failed: %w", err)
	}
	rt.Mongo, rt.MongoDB = client, mdb

	rt.Redis = cache.InitRedis(cfg.RedisURL)
	rt.Cache = rt.selectCache()
	rt.Users = identity.NewCachedStore(identity.NewMongoStore(mdb), rt.Cache)
	rt.Notifier = notifications.NewNotifier(rt.Redis)
	rt.Hub = notifications.NewHub(rt.Redis)

	blobs, err := storage.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		_ = rt.Close(context.Background())
		return nil, fmt.Errorf("media store init failed: %w", err)
	}
	rt.Blobs = blobs

	if opts.Events {
		rt.initEvents()
	}
	if opts.Scheduler {
		if err := rt.initScheduler(); err != nil {
			_ = rt.Close(context.Background())
			return nil, err
		}
	}
	return rt, nil
}

// selectCache prefers memcached when configured and reachable, then Redis.
func (rt *Runtime) selectCache() cache.Store {
	if addr := rt.Config.MemcachedAddr; addr != "" {
		mc := cache.NewMemcachedStore(addr)
		if err := mc.Ping(); err != nil {
			rt.log.Warn("memcached unavailable, falling back", slog.String("addr", addr), slog.String("error", err.Error()))
		} else {
			rt.log.Info("using memcached for read cache", slog.String("addr", addr))
			return mc
		}
	}
	if rt.Redis != nil {
		return cache.NewRedisStore(rt.Redis)
	}
	return cache.NoopStore{}
}

// sink is where consumed events go: Redis pub/sub when available so every
// instance sees them, otherwise straight into the local hub.
func (rt *Runtime) sink() events.Sink {
	if rt.Redis != nil {
		return rt.Notifier
	}
	return rt.Hub
}

func (rt *Runtime) initEvents() {
	cfg := rt.Config
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err == nil {
			consumer, cerr := events.NewAMQPConsumer(cfg.AMQPURL, cfg.EventsExchange, cfg.EventsQueue)
			if cerr == nil {
				rt.publisher, rt.consumer = pub, consumer
				rt.Dispatcher = events.NewDispatcher(pub, cfg.EventsBuffer)
				rt.log.Info("event pipeline using AMQP", slog.String("exchange", cfg.EventsExchange))
				return
			}
			_ = pub.Close()
			err = cerr
		}
		rt.log.Warn("AMQP unavailable, using in-process events", slog.String("error", err.Error()))
	}
	ch := events.NewChannelPublisher(cfg.EventsBuffer)
	rt.publisher = ch
	rt.Dispatcher = events.NewDispatcher(ch, cfg.EventsBuffer)
}

func (rt *Runtime) initScheduler() error {
	sched, err := scheduler.New(rt.Config.SchedulerTimezone, scheduler.DefaultJobTimeout)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	purger := service.NewNotificationService(repository.NewNotificationRepository(rt.DB), nil, nil)
	err = sched.RegisterMaintenance(scheduler.Schedules{
		Reconcile: rt.Config.ReconcileSchedule,
		Purge:     rt.Config.PurgeSchedule,
	}, repository.NewInteractionRepository(rt.DB), purger)
	if err != nil {
		return fmt.Errorf("scheduler jobs: %w", err)
	}
	rt.Scheduler = sched
	return nil
}

// Emitter returns the dispatcher as a service.Emitter, or nil when the event
// pipeline is off so services skip emission entirely.
func (rt *Runtime) Emitter() service.Emitter {
	if rt.Dispatcher == nil {
		return nil
	}
	return rt.Dispatcher
}

// Start launches the dispatcher, the consumer that feeds the sink, and the
// scheduler. It returns immediately.
func (rt *Runtime) Start(ctx context.Context) {
	ctx, rt.cancel = context.WithCancel(ctx)

	if rt.Dispatcher != nil {
		rt.Dispatcher.Start()
		sink := rt.sink()
		switch pub := rt.publisher.(type) {
		case *events.ChannelPublisher:
			rt.wg.Add(1)
			go func() {
				defer rt.wg.Done()
				events.RunChannelConsumer(ctx, pub, sink, func(e events.Event, err error) {
					observability.LogAsyncOperationError(ctx, "event_forward", err, map[string]interface{}{"event_type": e.Type})
				})
			}()
		default:
			if rt.consumer != nil {
				rt.wg.Add(1)
				go func() {
					defer rt.wg.Done()
					handle := func(ctx context.Context, e events.Event) error { return events.Forward(ctx, sink, e) }
					if err := rt.consumer.Run(ctx, handle); err != nil {
						rt.log.Error("AMQP consumer stopped", slog.String("error", err.Error()))
					}
				}()
			}
		}
	}

	if rt.Scheduler != nil {
		rt.Scheduler.Start()
	}
}

// Close stops background work and releases every connection. It is safe to
// call on a partially initialized runtime.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	if rt.Scheduler != nil {
		select {
		case <-rt.Scheduler.Stop().Done():
		case <-ctx.Done():
		}
	}
	if rt.Dispatcher != nil {
		if err := rt.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher: %w", err))
		}
	}
	// The in-process consumer drains once its publisher is closed.
	if ch, ok := rt.publisher.(*events.ChannelPublisher); ok {
		_ = ch.Close()
		rt.wg.Wait()
	}
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.wg.Wait()
	if rt.publisher != nil {
		if err := rt.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if rt.consumer != nil {
		if err := rt.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer: %w", err))
		}
	}
	if rt.Mongo != nil {
		if err := rt.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongo: %w", err))
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := rt.closeDB(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	for _, shutdown := range rt.shutdowns {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rt *Runtime) closeDB() error {
	if rt.DB == nil {
		return nil
	}
	sqlDB, err := rt.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
