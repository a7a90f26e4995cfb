package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/hkbertoson/dayssincetags/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const backendName = "redis"

// MetricsHook records every Redis command and pipeline as a storage operation.
type MetricsHook struct {
	metrics *metrics.StorageMetrics
}

var _ goredis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(storageMetrics *metrics.StorageMetrics) *MetricsHook {
	return &MetricsHook{metrics: storageMetrics}
}

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		h.metrics.Observe(backendName, "dial", time.Since(start).Seconds(), err)
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.metrics.Observe(backendName, cmd.Name(), time.Since(start).Seconds(), ignoreNil(err))
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.metrics.Observe(backendName, "pipeline", time.Since(start).Seconds(), ignoreNil(err))
		return err
	}
}

func ignoreNil(err error) error {
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	return err
}
