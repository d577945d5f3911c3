package reconcile

import (
	"context"
	"time"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/task"
	"engagement-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues a full reconciliation every interval.
type Scheduler struct {
	enqueuer task.Enqueuer
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(cfg *config.Config, enqueuer task.Enqueuer) *Scheduler {
	interval := cfg.Reconcile.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{enqueuer: enqueuer, interval: interval}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.done = make(chan struct{})
			go s.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if s.cancel == nil {
				return nil
			}
			s.cancel()
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	zap.L().Info("[Scheduler] started reconcile scheduler", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	t, err := taskname.NewReconcileAllTask()
	if err != nil {
		zap.L().Error("[Scheduler] failed to build reconcile task", zap.Error(err))
		return
	}

	// one full pass per interval even if several schedulers are running
	info, err := s.enqueuer.Enqueue(ctx, t,
		asynq.Queue(task.QueueLow),
		asynq.Unique(s.interval),
	)
	if err != nil {
		zap.L().Error("[Scheduler] failed to enqueue reconcile task", zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] reconcile task enqueued", zap.String("task_id", info.ID))
}
