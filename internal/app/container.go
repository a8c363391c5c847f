package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/cadence/internal/communications/application/commands"
	"github.com/felixgeelhaar/cadence/internal/communications/application/orchestrator"
	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/felixgeelhaar/cadence/internal/communications/application/services"
	"github.com/felixgeelhaar/cadence/internal/communications/delivery"
	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/communications/infrastructure/directory"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/convert"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/cadence/pkg/config"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Observability
	Metrics observability.Metrics
	Health  *observability.HealthRegistry

	// Persistence
	History   domain.HistoryRepository
	LiveStore domain.LiveStore

	// Event bus
	Bus             *eventbus.InProcessEventBus
	EventPublisher  eventbus.Publisher
	BrokerPublisher *eventbus.RabbitMQPublisher
	BrokerConsumer  *eventbus.RabbitMQConsumer
	OutboxRepo      outbox.Repository
	OutboxProcessor *outbox.Processor

	// Scheduling, delivery and orchestration
	Engine     *services.Engine
	Directory  *directory.FileDirectory
	Dispatcher *delivery.Dispatcher
	Loop       *orchestrator.Loop

	// Command handlers
	SubmitHandler        *commands.SubmitCommunicationHandler
	RescheduleHandler    *commands.RescheduleCommunicationHandler
	CancelHandler        *commands.CancelCommunicationHandler
	ReportOutcomeHandler *commands.ReportOutcomeHandler

	// Query handlers
	ListLiveHandler      *queries.ListLiveHandler
	ListHistoryHandler   *queries.ListHistoryHandler
	GetHandler           *queries.GetCommunicationHandler
	ChannelStatusHandler *queries.ChannelStatusHandler

	startMu  sync.Mutex
	started  bool
	consumer sync.WaitGroup
	cancel   context.CancelFunc
}

type options struct {
	clock   domain.Clock
	jitter  domain.JitterSource
	senders []delivery.Sender
	metrics observability.Metrics
}

// Option customizes container construction.
type Option func(*options)

// WithClock replaces the system clock in the engine, loop and directory.
func WithClock(clock domain.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithJitter replaces the random spacing jitter of the rule pipeline.
func WithJitter(jitter domain.JitterSource) Option {
	return func(o *options) { o.jitter = jitter }
}

// WithSenders replaces the senders built from configuration.
func WithSenders(senders ...delivery.Sender) Option {
	return func(o *options) { o.senders = senders }
}

// WithMetrics replaces the Prometheus metrics backend.
func WithMetrics(metrics observability.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// NewContainer wires every component from configuration. Optional
// infrastructure (Redis, RabbitMQ) falls back to local alternatives in
// development and is fatal elsewhere.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{clock: domain.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observability.NewPrometheusMetrics()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: o.metrics,
		Health:  observability.NewHealthRegistry(),
	}

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.initLiveStore(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initEventBus(); err != nil {
		c.Close()
		return nil, err
	}

	pipeline := domain.NewDefaultRulePipeline(domain.RuleConfig{
		BusinessHoursStart: cfg.BusinessHoursStart,
		BusinessHoursEnd:   cfg.BusinessHoursEnd,
		SpacingJitterMax:   cfg.SpacingJitterMax,
	}, o.jitter)

	engineOpts := []services.EngineOption{
		services.WithClock(o.clock),
		services.WithMetrics(c.Metrics),
	}
	if c.LiveStore != nil {
		engineOpts = append(engineOpts, services.WithLiveStore(c.LiveStore))
	}
	c.Engine = services.NewEngine(pipeline, c.History, c.EventPublisher, services.EngineConfig{
		CollisionWindow:   cfg.CollisionWindow,
		ReconcileInterval: cfg.ReconcileInterval,
		Retry: domain.RetryPolicy{
			MaxRetries: cfg.RetryMax,
			BaseDelay:  cfg.RetryBaseDelay,
			Multiplier: cfg.RetryMultiplier,
		},
	}, logger, engineOpts...)

	if restored, err := c.Engine.Restore(ctx); err != nil {
		logger.Warn("failed to restore live communications", "restored", restored, "error", err)
	}

	dir, err := directory.Open(cfg.ContactsFile, logger,
		directory.WithThreshold(cfg.MaintenanceThreshold()),
		directory.WithClock(o.clock),
	)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Directory = dir

	c.Dispatcher = delivery.NewDispatcher(delivery.DispatcherConfig{
		FailureThreshold: convert.IntToUint32Clamped(cfg.BreakerFailureThreshold),
		OpenTimeout:      cfg.BreakerOpenTimeout,
		MaxRequests:      1,
		ProbeTimeout:     delivery.DefaultDispatcherConfig().ProbeTimeout,
	}, dir, c.Metrics, logger)
	senders := o.senders
	if senders == nil {
		senders = delivery.BuildSenders(delivery.SendersConfig{
			Gmail: delivery.GmailConfig{
				ClientID:     cfg.GmailClientID,
				ClientSecret: cfg.GmailClientSecret,
				RefreshToken: cfg.GmailRefreshToken,
				Sender:       cfg.GmailSender,
			},
			Telegram:        delivery.TelegramConfig{Token: cfg.TelegramBotToken, Timeout: cfg.DeliveryTimeout},
			Slack:           delivery.SlackConfig{BotToken: cfg.SlackBotToken},
			SimulateUnwired: cfg.DeliverySimulateUnwired,
		}, logger)
	}
	for _, s := range senders {
		c.Dispatcher.Register(s)
	}

	loop, err := orchestrator.NewLoop(orchestrator.Dependencies{
		Scheduler:   c.Engine,
		History:     c.Engine,
		Contacts:    dir,
		Preferences: dir,
		Deliverer:   c.Dispatcher,
		Finder:      orchestrator.MaintenanceFinder{},
		Notifier:    orchestrator.LogNotifier{Logger: logger},
		Recorder:    dir,
		Clock:       o.clock,
		Metrics:     c.Metrics,
	}, orchestrator.Config{
		TickInterval:        cfg.LoopTickInterval,
		HistoryWindowHours:  cfg.LoopHistoryWindowHours,
		DeliveryTimeout:     cfg.DeliveryTimeout,
		DeliveryConcurrency: cfg.DeliveryConcurrency,
	}, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Loop = loop
	c.Bus.RegisterConsumer(loop)
	if c.BrokerConsumer != nil {
		c.BrokerConsumer.RegisterConsumer(loop.SignalConsumer())
	}

	c.SubmitHandler = commands.NewSubmitCommunicationHandler(c.Engine)
	c.RescheduleHandler = commands.NewRescheduleCommunicationHandler(c.Engine)
	c.CancelHandler = commands.NewCancelCommunicationHandler(c.Engine)
	c.ReportOutcomeHandler = commands.NewReportOutcomeHandler(c.Engine)

	c.ListLiveHandler = queries.NewListLiveHandler(c.Engine)
	c.ListHistoryHandler = queries.NewListHistoryHandler(c.History, o.clock)
	c.GetHandler = queries.NewGetCommunicationHandler(c.Engine, c.History)
	c.ChannelStatusHandler = queries.NewChannelStatusHandler(c.Dispatcher, c.Loop.IsRunning)

	c.registerHealthChecks()

	logger.Info("container initialized",
		"driver", c.DBDriver,
		"event_bus", cfg.EventBusMode,
		"live_store", c.LiveStore != nil,
		"channels", len(senders),
	)
	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	cfg := c.Config
	dbCfg := database.Config{
		Driver:     database.Driver(cfg.DatabaseDriver),
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
		MaxConns:   cfg.DatabaseMaxConns,
	}
	if cfg.LocalMode {
		dbCfg.Driver = database.DriverSQLite
	}

	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrations.Run(ctx, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	history, err := newHistoryRepository(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.History = history
	c.Logger.Info("connected to database", "driver", c.DBDriver)
	return nil
}

// initLiveStore snapshots the live set to Redis when available and to the
// database otherwise.
func (c *Container) initLiveStore(ctx context.Context) error {
	cfg := c.Config
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			if !cfg.IsDevelopment() {
				return fmt.Errorf("failed to parse Redis URL: %w", err)
			}
			c.Logger.Warn("invalid Redis URL, live snapshot will use the database", "error", err)
		} else {
			client := redis.NewClient(opt)
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				if !cfg.IsDevelopment() {
					return fmt.Errorf("failed to connect to Redis: %w", err)
				}
				c.Logger.Warn("Redis not available, live snapshot will use the database", "error", err)
			} else {
				c.RedisClient = client
				c.Logger.Info("connected to Redis")
			}
		}
	}

	if !cfg.LiveSnapshotEnabled {
		return nil
	}
	c.LiveStore = newLiveStore(c.DBConn, c.RedisClient)
	return nil
}

// initEventBus always dispatches in process. In rabbitmq mode events are
// also written to the outbox and relayed to the broker, and trigger signals
// are consumed from it.
func (c *Container) initEventBus() error {
	cfg := c.Config
	c.Bus = eventbus.NewInProcessEventBus(c.Logger, eventbus.WithBusMetrics(c.Metrics))
	c.EventPublisher = c.Bus
	if cfg.EventBusMode != "rabbitmq" {
		return nil
	}

	broker, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, c.Logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, events stay in process", "error", err)
		return nil
	}
	c.BrokerPublisher = broker

	repo, err := outbox.NewRepository(c.DBConn)
	if err != nil {
		return err
	}
	c.OutboxRepo = repo
	c.OutboxProcessor = outbox.NewProcessor(repo, broker, outbox.DefaultProcessorConfig(), c.Metrics, c.Logger)
	c.EventPublisher = eventbus.NewFanOutPublisher(c.Logger, c.Bus, outbox.NewPublisher(repo, c.Logger))

	consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:    cfg.RabbitMQURL,
		Logger: c.Logger,
	}, eventbus.NewConsumerRegistry(c.Logger))
	if err != nil {
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to start RabbitMQ consumer: %w", err)
		}
		c.Logger.Warn("RabbitMQ consumer not available, signals arrive in process only", "error", err)
		return nil
	}
	c.BrokerConsumer = consumer
	return nil
}

func (c *Container) registerHealthChecks() {
	c.Health.Register("database", observability.DatabaseHealthChecker(c.DBConn.Ping))
	if c.RedisClient != nil {
		c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}))
	}
	if c.BrokerPublisher != nil {
		c.Health.Register("rabbitmq", observability.RabbitMQHealthChecker(c.BrokerPublisher.Ping))
	}
	c.Health.Register("channels", observability.ChannelsHealthChecker(func() map[string]bool {
		status := c.Dispatcher.GetChannelStatus()
		out := make(map[string]bool, len(status))
		for ch, ok := range status {
			out[string(ch)] = ok
		}
		return out
	}))
}

// Start launches the engine timer driver, the orchestration loop and, in
// rabbitmq mode, the outbox relay and broker consumer. Calling Start twice
// is a no-op.
func (c *Container) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := c.Engine.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if err := c.Loop.Start(runCtx); err != nil {
		c.Engine.Stop()
		cancel()
		return err
	}
	if c.OutboxProcessor != nil {
		if err := c.OutboxProcessor.Start(runCtx); err != nil {
			c.Logger.Warn("failed to start outbox relay", "error", err)
		}
	}
	if c.BrokerConsumer != nil {
		c.consumer.Add(1)
		go func() {
			defer c.consumer.Done()
			if err := c.BrokerConsumer.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				c.Logger.Error("RabbitMQ consumer stopped", "error", err)
			}
		}()
	}

	c.cancel = cancel
	c.started = true
	return nil
}

// Stop halts background work started by Start. Pending deliveries are
// drained before the channels are closed.
func (c *Container) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if !c.started {
		return
	}
	c.started = false

	c.Engine.Stop()
	c.Loop.Stop()
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	c.cancel()
	c.consumer.Wait()
}

// Close stops background work and releases every connection.
func (c *Container) Close() {
	c.Stop()

	if c.BrokerConsumer != nil {
		if err := c.BrokerConsumer.Close(); err != nil {
			c.Logger.Warn("error closing RabbitMQ consumer", "error", err)
		}
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.BrokerPublisher != nil {
		if err := c.BrokerPublisher.Close(); err != nil {
			c.Logger.Warn("error closing RabbitMQ publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver)
		}
	}
}
