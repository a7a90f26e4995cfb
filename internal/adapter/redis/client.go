package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hkbertoson/dayssincetags/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

var pingPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     4 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis ping failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

// NewClient parses redisURL, installs hooks and waits for the server to answer a PING.
func NewClient(ctx context.Context, redisURL string, hooks ...goredis.Hook) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	for _, hook := range hooks {
		rdb.AddHook(hook)
	}

	err = retry.DoVoid(ctx, pingPolicy, classifyPing(ctx), func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// classifyPing retries everything until the caller's context is done.
func classifyPing(ctx context.Context) retry.Classify {
	return func(error) retry.Action {
		if ctx.Err() != nil {
			return retry.Stop
		}
		return retry.Retry
	}
}
