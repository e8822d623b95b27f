package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slotkeeper/internal/app/engine"
	appoutbox "slotkeeper/internal/app/outbox"
	"slotkeeper/internal/infra/broker/kafka"
	"slotkeeper/internal/infra/config"
	mongodb "slotkeeper/internal/infra/db/mongo"
	"slotkeeper/internal/infra/export"
	"slotkeeper/internal/infra/inbox"
	"slotkeeper/internal/infra/lock/redislock"
	"slotkeeper/internal/infra/notify"
	"slotkeeper/internal/infra/obs"
	infraoutbox "slotkeeper/internal/infra/outbox"
	"slotkeeper/internal/infra/storage/memory"
	"slotkeeper/internal/infra/storage/s3"
)

const eventSource = "slotkeeper"

// infrastructure owns every connection main opens and the goroutines that
// run next to the HTTP server.
type infrastructure struct {
	cfg     config.Config
	deps    engine.Deps
	checks  []obs.Check
	closers []func() error

	outboxWorker *infraoutbox.Worker
	consumer     *kafka.Consumer
	deliveries   *notify.DeliveryServer
	inbox        kafka.Deduper

	wg sync.WaitGroup
}

func buildInfrastructure(ctx context.Context, cfg config.Config, logger *slog.Logger) (*infrastructure, error) {
	in := &infrastructure{cfg: cfg}
	router := appoutbox.NewRouter()
	in.deps = engine.Deps{
		Router:  router,
		Encoder: export.ICalEncoder{Domain: "slotkeeper"},
		Logger:  logger,
	}

	switch cfg.App.Store {
	case config.StoreMongo:
		if err := in.useMongo(ctx, router, logger); err != nil {
			in.close(logger)
			return nil, err
		}
	default:
		box := memory.NewOutbox(router, logger)
		in.deps.Factory = memory.NewFactory(box)
		in.deps.Outbox = box
		idem := memory.NewIdempotencyStore()
		idem.TTL = in.cfg.App.IdempotencyTTL
		in.deps.Idempotency = idem
		logger.Info("using in-memory store")
	}

	if cfg.Redis.Enabled() {
		locker, err := redislock.New(redislock.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
		}, logger)
		if err != nil {
			in.close(logger)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		in.deps.Locker = locker
		in.closers = append(in.closers, locker.Close)
		in.checks = append(in.checks, obs.Check{Name: "redis", Probe: locker.Ping})
	}

	logNotifier := notify.LogNotifier{Logger: logger}
	switch cfg.Notify.Mode {
	case config.NotifyAsynq:
		redisOpts := notify.RedisOptions{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		notifier := notify.NewAsynqNotifier(redisOpts, cfg.Notify.Queue, logger)
		in.deps.Notifier = notifier
		in.closers = append(in.closers, notifier.Close)
		in.deliveries = notify.NewDeliveryServer(redisOpts, cfg.Notify.Queue, notify.Deliverer{Sink: logNotifier, Logger: logger})
	default:
		in.deps.Notifier = logNotifier
	}

	if cfg.S3.Enabled() {
		publisher, err := s3.NewPublisher(s3.Options{
			Endpoint:       cfg.S3.Endpoint,
			PublicEndpoint: cfg.S3.PublicEndpoint,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			Bucket:         cfg.S3.Bucket,
			UseSSL:         cfg.S3.UseSSL,
			PublicRead:     true,
		}, logger)
		if err != nil {
			in.close(logger)
			return nil, fmt.Errorf("connect object storage: %w", err)
		}
		in.deps.Uploader = publisher
		in.checks = append(in.checks, obs.Check{Name: "s3", Probe: publisher.Ping})
	}
	return in, nil
}

func (in *infrastructure) useMongo(ctx context.Context, router *appoutbox.Router, logger *slog.Logger) error {
	client, err := mongodb.New(in.cfg.Mongo.URI, in.cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	in.closers = append(in.closers, func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Close(closeCtx)
	})
	in.checks = append(in.checks, obs.Check{Name: "mongo", Probe: client.Ping})

	if err := client.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}
	store, err := infraoutbox.NewStore(ctx, client.DB)
	if err != nil {
		return fmt.Errorf("outbox store: %w", err)
	}
	idem, err := mongodb.NewIdempotencyStore(ctx, client.DB, in.cfg.App.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	in.deps.Factory = mongodb.NewFactory(client.DB, store)
	in.deps.Outbox = store
	in.deps.Idempotency = idem

	var producer infraoutbox.Producer = infraoutbox.LocalProducer{Router: router}
	if in.cfg.Kafka.Enabled() {
		p, err := kafka.NewProducer(in.cfg.Kafka.Brokers, nil)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		in.closers = append(in.closers, p.Close)
		producer = p

		box, err := inbox.NewStore(ctx, client.DB, in.cfg.Kafka.GroupID)
		if err != nil {
			return fmt.Errorf("inbox store: %w", err)
		}
		in.inbox = box
	}
	in.outboxWorker = &infraoutbox.Worker{
		Store:       store,
		Producer:    producer,
		Interval:    in.cfg.Outbox.PollInterval,
		BatchSize:   in.cfg.Outbox.BatchSize,
		TopicPrefix: in.cfg.Kafka.TopicPrefix,
		Source:      eventSource,
		Backoff:     in.cfg.Outbox.RetryBackoff,
		Logger:      logger.With("component", "outbox"),
	}
	logger.Info("using mongo store", "database", in.cfg.Mongo.Database, "kafka", in.cfg.Kafka.Enabled())
	return nil
}

// start launches the background loops. It runs after the engine has
// subscribed its reactions, so the consumer knows which topics to join.
func (in *infrastructure) start(ctx context.Context, router *appoutbox.Router, logger *slog.Logger) {
	if in.outboxWorker != nil {
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			if err := in.outboxWorker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	if in.inbox != nil {
		consumer, err := kafka.NewConsumer(in.cfg.Kafka.Brokers, in.cfg.Kafka.GroupID, nil, kafka.RouterHandler{
			Router: router,
			Inbox:  in.inbox,
			Logger: logger.With("component", "consumer"),
		}, logger)
		if err != nil {
			logger.Error("kafka consumer unavailable", "error", err)
		} else {
			in.consumer = consumer
			topics := kafka.Topics(in.cfg.Kafka.TopicPrefix, router)
			in.wg.Add(1)
			go func() {
				defer in.wg.Done()
				if err := consumer.Run(ctx, topics); err != nil && ctx.Err() == nil {
					logger.Error("kafka consumer stopped", "error", err)
				}
			}()
			logger.Info("kafka consumer started", "topics", topics)
		}
	}

	if in.deliveries != nil {
		if err := in.deliveries.Start(); err != nil {
			logger.Error("notification worker unavailable", "error", err)
			in.deliveries = nil
		}
	}
}

// wait blocks until the background loops have returned.
func (in *infrastructure) wait() {
	if in.consumer != nil {
		_ = in.consumer.Close()
	}
	in.wg.Wait()
}

func (in *infrastructure) close(logger *slog.Logger) {
	if in.deliveries != nil {
		in.deliveries.Shutdown()
	}
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}
