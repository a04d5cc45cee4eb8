package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/config"
)

// RetryConfig contains configuration for database connection retries
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     30,
		InitialDelay:    2 * time.Second,
		MaxDelay:        30 * time.Second,
		BackoffMultiple: 1.5,
	}
}

// RetryConfigFromConfig creates a RetryConfig from the application configuration
func RetryConfigFromConfig(cfg *config.Config) RetryConfig {
	return RetryConfig{
		MaxAttempts:     cfg.Database.Retry.MaxAttempts,
		InitialDelay:    cfg.Database.Retry.InitialDelay,
		MaxDelay:        cfg.Database.Retry.MaxDelay,
		BackoffMultiple: cfg.Database.Retry.BackoffMultiple,
	}
}

// NewConnectionWithRetry connects with exponential backoff until it succeeds, the attempts
// run out, or ctx is cancelled.
func NewConnectionWithRetry(ctx context.Context, cfg *config.Config, retryConfig RetryConfig, log logrus.FieldLogger) (*DB, error) {
	return retry(ctx, retryConfig, log, func() (*DB, error) {
		return NewConnection(cfg, log)
	})
}

func retry(ctx context.Context, retryConfig RetryConfig, log logrus.FieldLogger, connect func() (*DB, error)) (*DB, error) {
	var lastErr error
	delay := retryConfig.InitialDelay

	for attempt := 1; attempt <= retryConfig.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("database connection cancelled: %w", ctx.Err())
		default:
		}

		db, err := connect()
		if err == nil {
			log.WithField("attempt", attempt).Info("Database connection established")
			return db, nil
		}

		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("Database connection attempt failed")

		if attempt == retryConfig.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("database connection cancelled during retry delay: %w", ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * retryConfig.BackoffMultiple)
		if delay > retryConfig.MaxDelay {
			delay = retryConfig.MaxDelay
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts, last error: %w",
		retryConfig.MaxAttempts, lastErr)
}
