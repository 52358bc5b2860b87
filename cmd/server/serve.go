package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"waterlily/internal/outbox"
	"waterlily/internal/platform/config"
	"waterlily/internal/platform/httpserver"
	"waterlily/internal/platform/kafka"
	"waterlily/internal/platform/logger"
	"waterlily/internal/platform/metrics"
	"waterlily/internal/platform/redis"
	jwttoken "waterlily/internal/jwt_token"
	"waterlily/internal/profile/cache"
	profilehandler "waterlily/internal/profile/handler"
	"waterlily/internal/profile/service"
	httptransport "waterlily/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// loadConfig resolves flags, environment, .env and defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.New()
	if err != nil {
		return nil, err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(log)
	if cfg.UsesDevSecret() {
		log.Warn("using the built-in development JWT secret; set WATERLILY_JWT_SECRET in production")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	records, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := records.Close(); err != nil {
			log.Error("closing record store", "error", err)
		}
	}()

	ready := map[string]httptransport.Pinger{"database": records}
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithReadTimeout(cfg.Database.TxTimeout),
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithCache(cache.NewRedisCache(redisClient, cfg.Redis.CacheTTL)))
		ready["redis"] = pingerFunc(redisClient.Health)
		log.Info("profile view cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	profiles, err := service.New(records, records, opts...)
	if err != nil {
		return err
	}

	var relay *outbox.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure outbox topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		ready["kafka"] = pingerFunc(producer.Ping)

		relay = outbox.New(records, producer,
			outbox.WithPollInterval(cfg.Outbox.PollInterval),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithLogger(log),
			outbox.WithMetrics(m),
		)
	} else {
		log.Info("kafka brokers not configured; outbox events stay in the database")
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSecret)
	handler := profilehandler.New(profiles, log, m, jwttoken.NewJWTServiceAdapter(jwtService),
		profilehandler.WithRequestTimeout(cfg.Server.RequestTimeout),
		profilehandler.WithDebugErrors(cfg.Server.DebugErrors),
	)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       reg,
		Logger:         log,
		Ready:          ready,
	}, handler)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}

	g.Go(func() error {
		log.Info("starting waterlily", "addr", cfg.Server.Addr, "db_driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})

	return g.Wait()
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
