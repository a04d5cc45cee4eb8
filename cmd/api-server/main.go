package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mhrivnak/orderflow/pkg/api"
	"github.com/mhrivnak/orderflow/pkg/approval"
	"github.com/mhrivnak/orderflow/pkg/auth"
	"github.com/mhrivnak/orderflow/pkg/config"
	"github.com/mhrivnak/orderflow/pkg/database"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/discovery"
	"github.com/mhrivnak/orderflow/pkg/events"
	"github.com/mhrivnak/orderflow/pkg/hooks"
	"github.com/mhrivnak/orderflow/pkg/lock"
	"github.com/mhrivnak/orderflow/pkg/logging"
	"github.com/mhrivnak/orderflow/pkg/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("API server failed")
	}
	log.Info("Server exited")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     api.Version,
		})
		if err != nil {
			log.WithError(err).Warn("Sentry initialization failed")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	db, err := database.NewConnectionWithRetry(ctx, cfg, database.RetryConfigFromConfig(cfg), log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		return err
	}
	if err := db.BootstrapDefaultData(ctx, cfg); err != nil {
		return err
	}

	userRepo := repositories.NewUserRepository(db.DB)
	groupRepo := repositories.NewGroupRepository(db.DB)
	orderRepo := repositories.NewOrderRepository(db.DB)
	serverRepo := repositories.NewServerRepository(db.DB)

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		redisLocker := lock.NewRedis(client, cfg.Redis.LockTTL, cfg.Redis.OperationTimeout)
		if err := redisLocker.Ping(ctx); err != nil {
			return err
		}
		locker = redisLocker
		log.WithField("addr", cfg.Redis.Addr).Info("Using redis approval locks")
	}

	var notifier approval.Notifier
	if cfg.SMTP.Enabled {
		notifier = notify.NewEmail(cfg, log)
	}

	var publisher events.Publisher = events.Discard{}
	if cfg.Events.Enabled {
		amqp, err := events.Dial(cfg.Events.URL, cfg.Events.Exchange, log)
		if err != nil {
			return err
		}
		publisher = amqp
	}
	defer publisher.Close()

	runner, err := approval.BuildRunner(cfg.Approval, log)
	if err != nil {
		return err
	}
	approvals := approval.NewService(orderRepo, groupRepo, userRepo, runner, locker, notifier, publisher, log)

	registry := hooks.NewOptionRegistry()
	approval.RegisterOptionGenerators(registry, groupRepo)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	server := api.NewServer(cfg, db, api.Services{
		Auth:      auth.NewService(userRepo, jwtManager, log),
		JWT:       jwtManager,
		Approvals: approvals,
		Options:   registry,
		Syncer:    discovery.NewSyncer(serverRepo, log),
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received")
		// Give the server 30 seconds to finish current requests
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})
	return g.Wait()
}
