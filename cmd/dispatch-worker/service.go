package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/myhibachi/hibachi-backend/internal/channels/email"
	"github.com/myhibachi/hibachi-backend/internal/channels/payments"
	"github.com/myhibachi/hibachi-backend/internal/channels/relay"
	"github.com/myhibachi/hibachi-backend/internal/channels/sms"
	"github.com/myhibachi/hibachi-backend/internal/cron"
	"github.com/myhibachi/hibachi-backend/internal/ops"
	"github.com/myhibachi/hibachi-backend/internal/outbox"
	"github.com/myhibachi/hibachi-backend/pkg/config"
	"github.com/myhibachi/hibachi-backend/pkg/db"
	"github.com/myhibachi/hibachi-backend/pkg/logger"
	"github.com/myhibachi/hibachi-backend/pkg/metrics"
	"github.com/myhibachi/hibachi-backend/pkg/pubsub"
	"github.com/myhibachi/hibachi-backend/pkg/redis"
	"github.com/myhibachi/hibachi-backend/pkg/security"
	"github.com/myhibachi/hibachi-backend/pkg/stripe"
)

// ServiceParams carry the shared clients built in main.
type ServiceParams struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client
	Stripe *stripe.Client
	PubSub *pubsub.Client
}

// Service owns the per-channel dispatch workers, the maintenance cron, and
// the ops HTTP endpoint for one worker process.
type Service struct {
	cfg     *config.Config
	logg    *logger.Logger
	manager *outbox.Manager
	cron    *cron.Service
	ops     *ops.Server
}

// NewService wires every configured delivery channel into its own polling
// worker. Channels whose configuration is incomplete are skipped with a
// warning; their entries stay pending until the channel is configured.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	cfg := params.Config
	logg := params.Logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dispatchMetrics := metrics.NewDispatchMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	channels, err := buildChannels(cfg, logg, params.Stripe, params.PubSub)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, errors.New("no delivery channels configured")
	}

	manager, err := outbox.NewManager(logg, cfg.Outbox.ShutdownGrace)
	if err != nil {
		return nil, err
	}
	repo := outbox.NewRepository()
	for _, channel := range channels {
		worker, err := outbox.NewWorker(outbox.WorkerParams{
			DB:      params.DB,
			Repo:    repo,
			Channel: channel,
			Logger:  logg,
			Metrics: dispatchMetrics,
			Config:  cfg.Outbox,
		})
		if err != nil {
			return nil, fmt.Errorf("building %s worker: %w", channel.Name(), err)
		}
		if err := manager.AddWorker(worker); err != nil {
			return nil, err
		}
	}

	cronService, err := buildCron(cfg, logg, params.DB, params.Redis, repo, cronMetrics)
	if err != nil {
		return nil, err
	}

	opsServer, err := ops.NewServer(ops.ServerParams{
		Config:   cfg,
		Logger:   logg,
		Registry: registry,
		DB:       params.DB,
		Redis:    params.Redis,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:     cfg,
		logg:    logg,
		manager: manager,
		cron:    cronService,
		ops:     opsServer,
	}, nil
}

func buildChannels(cfg *config.Config, logg *logger.Logger, stripeClient *stripe.Client, pubsubClient *pubsub.Client) ([]outbox.Channel, error) {
	var channels []outbox.Channel
	ctx := context.Background()

	if cfg.SMS.Enabled() {
		var cipher *security.FieldCipher
		if cfg.Security.FieldKeySecret != "" {
			var err error
			cipher, err = security.NewFieldCipher(cfg.Security.FieldKeySecret)
			if err != nil {
				return nil, fmt.Errorf("building field cipher: %w", err)
			}
		}
		gateway, err := sms.NewGateway(cfg.SMS)
		if err != nil {
			return nil, fmt.Errorf("building sms gateway: %w", err)
		}
		channel, err := sms.NewChannel(sms.ChannelParams{Sender: gateway, Cipher: cipher})
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	} else {
		logg.Warn(ctx, "sms channel disabled: incomplete configuration")
	}

	if cfg.Email.Enabled() {
		transport, err := email.NewTransport(cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("building email transport: %w", err)
		}
		channel, err := email.NewChannel(email.ChannelParams{
			Transport:   transport,
			DefaultFrom: cfg.Email.DefaultFrom,
			AdminEmail:  cfg.Email.AdminEmail,
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	} else {
		logg.Warn(ctx, "email channel disabled: incomplete configuration")
	}

	if stripeClient != nil {
		channel, err := payments.NewChannel(payments.ChannelParams{
			API: payments.NewStripeAPI(stripeClient),
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	} else {
		logg.Warn(ctx, "stripe channel disabled: no api key configured")
	}

	if pubsubClient != nil {
		channel, err := relay.NewChannel(relay.ChannelParams{
			Publisher: relay.NewPubSubPublisher(pubsubClient.EventsPublisher()),
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	} else {
		logg.Warn(ctx, "relay channel disabled: pubsub not configured")
	}

	return channels, nil
}

func buildCron(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, repo *outbox.Repository, cronMetrics *metrics.CronJobMetrics) (*cron.Service, error) {
	lock, err := cron.NewRedisLock(redisClient, cfg.Outbox.CronLockKey, cfg.Outbox.CronInterval)
	if err != nil {
		return nil, err
	}

	stuckJob, err := cron.NewStuckEntriesJob(cron.StuckEntriesJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: repo,
		StuckAfter: cfg.Outbox.StuckAfter,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: repo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(stuckJob, retentionJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Outbox.CronInterval,
	})
}

// Run blocks until the context is canceled, then shuts everything down
// within the configured grace period.
func (s *Service) Run(ctx context.Context) error {
	if err := s.manager.StartAll(ctx); err != nil {
		return err
	}

	cronCtx, cancelCron := context.WithCancel(ctx)
	defer cancelCron()
	go func() {
		if err := s.cron.Run(cronCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(cronCtx, "cron service stopped unexpectedly", err)
		}
	}()

	opsErr := make(chan error, 1)
	go func() {
		opsErr <- s.ops.Run()
	}()
	s.logg.Info(ctx, "ops endpoint listening on "+s.ops.Addr())

	select {
	case <-ctx.Done():
	case err := <-opsErr:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Outbox.ShutdownGrace)
	defer cancel()

	if err := s.ops.Shutdown(shutdownCtx); err != nil {
		s.logg.Error(shutdownCtx, "ops server shutdown failed", err)
	}
	if err := s.manager.StopAll(shutdownCtx); err != nil {
		return fmt.Errorf("stopping workers: %w", err)
	}
	return ctx.Err()
}
