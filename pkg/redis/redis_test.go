package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	require.Equal(t, "ok", outcome(nil))
	require.Equal(t, "ok", outcome(redis.Nil))
	require.Equal(t, "error", outcome(errors.New("connection refused")))
}

func TestMetricsHookCountsCommands(t *testing.T) {
	hook := metricsHook{}
	ctx := context.Background()

	ok := hook.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error { return nil })
	failing := hook.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error { return errors.New("boom") })

	okBefore := testutil.ToFloat64(commandsTotal.WithLabelValues("incr", "ok"))
	errBefore := testutil.ToFloat64(commandsTotal.WithLabelValues("incr", "error"))

	require.NoError(t, ok(ctx, redis.NewIntCmd(ctx, "incr", "seq:CMP:260101")))
	require.Error(t, failing(ctx, redis.NewIntCmd(ctx, "incr", "seq:CMP:260101")))

	require.Equal(t, okBefore+1, testutil.ToFloat64(commandsTotal.WithLabelValues("incr", "ok")))
	require.Equal(t, errBefore+1, testutil.ToFloat64(commandsTotal.WithLabelValues("incr", "error")))
}

func TestMetricsHookCountsPipelines(t *testing.T) {
	ctx := context.Background()
	incr := redis.NewIntCmd(ctx, "incr", "seq:CMP:260102")
	expire := redis.NewBoolCmd(ctx, "expire", "seq:CMP:260102", 90000)
	expire.SetErr(errors.New("timeout"))

	before := testutil.ToFloat64(commandsTotal.WithLabelValues("expire", "error"))

	pipe := metricsHook{}.ProcessPipelineHook(func(ctx context.Context, cmds []redis.Cmder) error { return nil })
	require.NoError(t, pipe(ctx, []redis.Cmder{incr, expire}))

	require.Equal(t, before+1, testutil.ToFloat64(commandsTotal.WithLabelValues("expire", "error")))
}
