package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"engagement-ledger/pkg/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_redis_commands_total",
	Help: "Redis commands issued by the ledger, by command and outcome.",
}, []string{"cmd", "status"})

func New(lc fx.Lifecycle, c *config.Config) *redis.Client {
	zapLog := zap.L().With(
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
		zap.Int("pool_size", c.Redis.PoolSize),
		zap.Duration("pool_timeout", c.Redis.PoolTimeout),
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})
	rdb.AddHook(metricsHook{})

	// Redis only backs display codes, so an unreachable server degrades
	// those instead of blocking startup.
	if err := waitReady(context.Background(), rdb, 15*time.Second); err != nil {
		zapLog.Error("[Redis] giving up on ping, commands will fail until redis is reachable", zap.Error(err))
	} else {
		zapLog.Info("[Redis] Connected to Redis")
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb
}

func waitReady(ctx context.Context, rdb *redis.Client, budget time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = budget

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := rdb.Ping(ctx).Err()
		if err != nil {
			zap.L().Warn("[Redis] Redis not ready, retrying...", zap.Int("retry", attempt), zap.Error(err))
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

// metricsHook counts every command by name and outcome. redis.Nil is a
// normal miss, not a failure.
type metricsHook struct{}

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		commandsTotal.WithLabelValues(cmd.Name(), outcome(err)).Inc()
		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			commandsTotal.WithLabelValues(cmd.Name(), outcome(cmd.Err())).Inc()
		}
		return err
	}
}

func outcome(err error) string {
	switch {
	case err == nil, errors.Is(err, redis.Nil):
		return "ok"
	default:
		return "error"
	}
}
