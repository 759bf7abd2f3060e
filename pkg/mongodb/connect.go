// Package mongodb adapts the MongoDB Go driver to the setup operations the
// initializer performs.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mongoinit/pkg/logger"
	"mongoinit/pkg/retry"
	"mongoinit/pkg/schema"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectConfig holds what is needed to reach the deployment.
type ConnectConfig struct {
	URI      string
	AppName  string
	Timeout  time.Duration
	Attempts int
}

// Connect dials the deployment and pings the primary until it answers.
// Authentication failures are not retried.
func Connect(ctx context.Context, cfg ConnectConfig, l *logger.Logger) (*mongo.Client, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.AppName != "" {
		clientOpts.SetAppName(cfg.AppName)
	}
	if cfg.Timeout > 0 {
		clientOpts.SetConnectTimeout(cfg.Timeout)
		clientOpts.SetServerSelectionTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	opts := retry.ConnectOptions(cfg.Attempts)
	opts.Classifier = retryable
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		l.Warn("mongodb not reachable yet",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		pingCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			return classify(err)
		}
		return nil
	}, opts)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client, nil
}

// retryable reports whether a classified ping error may clear up on its own.
// Rejected credentials never do.
func retryable(err error) bool {
	return !errors.Is(err, schema.ErrUnauthorized)
}
