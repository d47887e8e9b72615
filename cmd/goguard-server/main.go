// Command goguard-server runs the goGuard HTTP API against Postgres and
// Redis.
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

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/audit/amqpsink"
	"github.com/MrEthical07/goGuard/configcatalog"
	"github.com/MrEthical07/goGuard/httpapi"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/secretbox"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/store/gormstore"
	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("goguard-server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(env.Options{})
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) Postgres
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := gormstore.Migrate(ctx, db, logger); err != nil {
		return err
	}
	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return err
	}
	store, err := gormstore.New(db, hasher)
	if err != nil {
		return err
	}
	store.WithLogger(logger)

	sweeper := gormstore.NewSweeper(store, logger, gormstore.SweeperConfig{
		Schedule:  cfg.SweepSchedule,
		Retention: cfg.SweepRetention,
	})
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer func() { <-sweeper.Stop().Done() }()

	// 2) Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	// 3) Secrets
	masterKey, err := secretbox.DecodeKey(cfg.MasterKey)
	if err != nil {
		return fmt.Errorf("decode master key: %w", err)
	}
	box, err := secretbox.New(masterKey, "totp")
	clear(masterKey)
	if err != nil {
		return err
	}
	signer, err := jwt.NewSigner(jwt.Config{
		TTL:           cfg.SessionTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.SigningKey),
		Issuer:        cfg.Issuer,
		Leeway:        30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("session signer: %w", err)
	}

	// 4) Engine
	builder := goGuard.New().
		WithConfig(cfg.engineConfig()).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithAdminStore(store).
		WithConfigCatalog(configcatalog.New(cfg.ConfigRoot, configcatalog.DefaultFiles())).
		WithCipher(box).
		WithLogger(logger)
	sinks := goGuard.MultiSink{goGuard.NewLogSink(logger)}
	if cfg.AMQPURL != "" {
		amqp, err := amqpsink.Dial(cfg.AMQPURL, amqpsink.Config{}, logger)
		if err != nil {
			return fmt.Errorf("connect audit exchange: %w", err)
		}
		defer amqp.Close()
		sinks = append(sinks, amqp)
	}
	builder = builder.WithAuditSink(sinks)
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	// 5) HTTP
	sessions := session.NewStore(rdb, cfg.KeyPrefix+"gs", cfg.IdleTTL)
	api := httpapi.New(engine, signer, sessions, logger, cfg.httpConfig())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           prometheus.NewCollector(engine, promclient.Labels{"environment": cfg.Environment}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	for _, s := range []*http.Server{srv, metricsSrv} {
		go func(s *http.Server) {
			logger.Info("listening", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(s)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
}

func newLogger(cfg config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Environment == "dev" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "goguard")
}
