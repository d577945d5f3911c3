package retry

import (
	"context"
	"errors"
	"time"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/db"
	"engagement-ledger/services/ledgererr"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ledger_storage_retries_total",
	Help: "Units of work replayed after a transient storage conflict.",
})

// Policy bounds how many times a unit of work is replayed.
type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

func NewPolicy(cfg *config.Config) Policy {
	p := DefaultPolicy()
	if cfg == nil {
		return p
	}
	if cfg.Ledger.RetryMaxAttempts > 0 {
		p.MaxAttempts = cfg.Ledger.RetryMaxAttempts
	}
	if cfg.Ledger.RetryInitialInterval > 0 {
		p.InitialInterval = cfg.Ledger.RetryInitialInterval
	}
	if cfg.Ledger.RetryMaxInterval > 0 {
		p.MaxInterval = cfg.Ledger.RetryMaxInterval
	}
	return p
}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// attempt budget runs out. A spent budget surfaces as ledgererr.ErrUnavailable.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, attempts-1), ctx)

	err := backoff.RetryNotify(func() error {
		err := fn(ctx)
		if err != nil && !db.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		retriesTotal.Inc()
		zap.L().Warn("transient storage conflict, retrying",
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	if db.IsTransient(err) {
		zap.L().Error("retry budget exhausted", zap.String("op", op), zap.Error(err))
		return ledgererr.Unavailable(err)
	}
	return err
}
