package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/es-bank-account/internal/api"
	"github.com/example/es-bank-account/internal/auth"
	"github.com/example/es-bank-account/internal/command"
	"github.com/example/es-bank-account/internal/config"
	"github.com/example/es-bank-account/internal/domain/account"
	"github.com/example/es-bank-account/internal/domain/aggregate"
	"github.com/example/es-bank-account/internal/infrastructure/cache"
	"github.com/example/es-bank-account/internal/infrastructure/kafka"
	"github.com/example/es-bank-account/internal/infrastructure/store"
	"github.com/example/es-bank-account/internal/metrics"
	"github.com/example/es-bank-account/internal/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	events := b.events
	if cfg.Kafka.Enabled {
		retryCfg := kafka.DefaultRetryConfig()
		retryCfg.MaxAttempts = cfg.Kafka.RetryAttempts
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, retryCfg, log)
		defer producer.Close()
		events = store.NewPublishingEventLog(events, producer, cfg.Kafka.PublishTimeout, log)
		log.Info("publishing events to kafka", slog.String("topic", cfg.Kafka.Topic))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	storeOpts := []aggregate.Option{
		aggregate.WithPolicy(snapshotPolicy(cfg.Snapshot, time.Now)),
		aggregate.WithLogger(log),
		aggregate.WithMetrics(metrics.NewPrometheus(reg)),
	}
	var readCache *cache.Cache[*store.Snapshot]
	if cfg.Cache.Enabled {
		readCache = cache.New[*store.Snapshot](cfg.Cache.TTL)
		storeOpts = append(storeOpts, aggregate.WithCache(readCache))
		if cfg.Cache.InvalidateOnWrite {
			storeOpts = append(storeOpts, aggregate.WithInvalidateOnWrite())
		}
	}

	accounts := account.NewStore(events, b.snapshots, storeOpts...)

	routerCfg := api.RouterConfig{
		Handlers: api.NewHandlers(
			command.NewHandler(accounts, command.WithLogger(log)),
			query.NewHandler(accounts, events, log),
			log,
		),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:     log,
	}
	if cfg.Auth.Enabled {
		jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		routerCfg.JWT = jwtService
		routerCfg.Auth = api.NewAuthHandlers(jwtService, auth.Credentials{
			Operator:     cfg.Auth.Operator,
			PasswordHash: cfg.Auth.OperatorPasswordHash,
		}, log)
	} else {
		log.Warn("auth disabled; account commands are open")
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server started", slog.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if readCache != nil {
		g.Go(func() error {
			return readCache.RunJanitor(gctx, cfg.Cache.PurgeInterval)
		})
	}
	return g.Wait()
}

// snapshotPolicy combines the configured count and interval triggers
func snapshotPolicy(cfg config.SnapshotConfig, now func() time.Time) aggregate.Policy {
	var policies []aggregate.Policy
	if cfg.EveryEvents > 0 {
		policies = append(policies, aggregate.EveryNEvents(cfg.EveryEvents))
	}
	if cfg.Interval > 0 {
		policies = append(policies, aggregate.EveryInterval(cfg.Interval, now))
	}
	switch len(policies) {
	case 0:
		return aggregate.Never
	case 1:
		return policies[0]
	default:
		return aggregate.Any(policies...)
	}
}
