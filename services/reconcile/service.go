package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/logger"
	"engagement-ledger/services/account"
	"engagement-ledger/services/action"
	"engagement-ledger/services/campaign"
	"engagement-ledger/services/ledgererr"
	"engagement-ledger/services/txlog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("engagement-ledger/reconcile")

var mismatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_reconcile_mismatches_total",
	Help: "Ledger checks that failed during reconciliation.",
}, []string{"subject"})

// Service re-derives balances and campaign counters from the append-only
// records and reports disagreements. It never writes.
type Service struct {
	db          *gorm.DB
	txlog       *txlog.Service
	concurrency int
	pageSize    int
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config `optional:"true"`
	TxLog  *txlog.Service
}

func NewService(p Params) *Service {
	s := &Service{
		db:          p.DB,
		txlog:       p.TxLog,
		concurrency: 8,
		pageSize:    500,
	}
	if p.Config != nil {
		if p.Config.Reconcile.Concurrency > 0 {
			s.concurrency = p.Config.Reconcile.Concurrency
		}
		if p.Config.Reconcile.PageSize > 0 {
			s.pageSize = p.Config.Reconcile.PageSize
		}
	}
	return s
}

// snapshot runs fn in a read only transaction. Server databases get
// REPEATABLE READ so every query in fn sees the same state.
func (s *Service) snapshot(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var opts *sql.TxOptions
	if s.db.Dialector.Name() != "sqlite" {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return s.db.WithContext(ctx).Transaction(fn, opts)
}

// ReconcileAccount checks that the transaction log explains the account:
// the amounts sum to the balance and the lifetime counters match the
// per kind totals.
func (s *Service) ReconcileAccount(ctx context.Context, accountID string) ([]Mismatch, error) {
	ctx, span := tracer.Start(ctx, "reconcile.ReconcileAccount")
	defer span.End()

	var (
		acct   account.Account
		totals txlog.Totals
	)
	err := s.snapshot(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", accountID).Take(&acct).Error; err != nil {
			return err
		}
		t, err := s.txlog.TotalsByAccountTx(ctx, tx, accountID)
		totals = t
		return err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgererr.NotFound("account", accountID)
	}
	if err != nil {
		return nil, err
	}

	c := &checker{subject: SubjectAccount, id: accountID}
	c.equal("balance_equals_ledger", totals.Sum, acct.Balance)
	c.equal("total_earned_equals_earn", totals.Earn, acct.TotalEarned)
	c.equal("total_spent_equals_spend_less_refund", -totals.Spend-totals.Refund, acct.TotalSpent)
	c.equal("adjustment_count", totals.Count, acct.Seq)
	c.holds("balance_non_negative", acct.Balance >= 0)

	s.report(ctx, c.out)
	return c.out, nil
}

// ReconcileCampaign checks conservation, the completion rule and that the
// recorded actions explain the progress counters.
func (s *Service) ReconcileCampaign(ctx context.Context, campaignID string) ([]Mismatch, error) {
	ctx, span := tracer.Start(ctx, "reconcile.ReconcileCampaign")
	defer span.End()

	var (
		cmp campaign.Campaign
		agg struct {
			N   int64
			Sum int64
		}
	)
	err := s.snapshot(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", campaignID).Take(&cmp).Error; err != nil {
			return err
		}
		return tx.Model(&action.Action{}).
			Select("COUNT(*) AS n, COALESCE(SUM(credits_earned), 0) AS sum").
			Where("campaign_id = ?", campaignID).
			Scan(&agg).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgererr.NotFound("campaign", campaignID)
	}
	if err != nil {
		return nil, err
	}

	c := &checker{subject: SubjectCampaign, id: campaignID}
	c.equal("conservation", cmp.TotalCredits, cmp.RemainingCredits+cmp.CreditsPerAction*cmp.CurrentCount+cmp.RefundedCredits)
	c.holds("current_count_within_target", cmp.CurrentCount <= cmp.TargetCount)
	c.holds("remaining_non_negative", cmp.RemainingCredits >= 0)
	if cmp.Status == campaign.StatusCancelled {
		c.equal("cancelled_without_actions", 0, cmp.CurrentCount)
		c.equal("cancelled_fully_refunded", cmp.TotalCredits, cmp.RefundedCredits)
	} else {
		c.holds("completed_iff_exhausted", (cmp.Status == campaign.StatusCompleted) == cmp.ShouldBeCompleted())
		c.equal("no_refund_while_open", 0, cmp.RefundedCredits)
	}
	c.equal("actions_equal_current_count", cmp.CurrentCount, agg.N)
	c.equal("actions_credits_equal_released", cmp.CreditsPerAction*cmp.CurrentCount, agg.Sum)

	s.report(ctx, c.out)
	return c.out, nil
}

// ReconcileAll walks every account and campaign in id order, checking up to
// the configured concurrency at once.
func (s *Service) ReconcileAll(ctx context.Context) (*Report, error) {
	ctx, span := tracer.Start(ctx, "reconcile.ReconcileAll")
	defer span.End()

	report := &Report{Mismatches: []Mismatch{}}
	var mu sync.Mutex
	collect := func(ms []Mismatch) {
		mu.Lock()
		report.Mismatches = append(report.Mismatches, ms...)
		mu.Unlock()
	}

	n, err := s.fanOut(ctx, &account.Account{}, func(ctx context.Context, id string) error {
		ms, err := s.ReconcileAccount(ctx, id)
		collect(ms)
		return err
	})
	if err != nil {
		return nil, err
	}
	report.Accounts = n

	n, err = s.fanOut(ctx, &campaign.Campaign{}, func(ctx context.Context, id string) error {
		ms, err := s.ReconcileCampaign(ctx, id)
		collect(ms)
		return err
	})
	if err != nil {
		return nil, err
	}
	report.Campaigns = n

	logger.FromContext(ctx).Info("reconciliation finished",
		zap.Int("accounts", report.Accounts),
		zap.Int("campaigns", report.Campaigns),
		zap.Int("mismatches", len(report.Mismatches)),
	)
	return report, nil
}

// fanOut pages the ids of model's table and runs fn for each of them.
func (s *Service) fanOut(ctx context.Context, model any, fn func(ctx context.Context, id string) error) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	total := 0
	after := ""
	for {
		var ids []string
		err := s.db.WithContext(gctx).Model(model).
			Where("id > ?", after).
			Order("id ASC").
			Limit(s.pageSize).
			Pluck("id", &ids).Error
		if err != nil {
			_ = g.Wait()
			return total, err
		}

		for _, id := range ids {
			id := id
			g.Go(func() error { return fn(gctx, id) })
		}
		total += len(ids)

		if len(ids) < s.pageSize {
			break
		}
		after = ids[len(ids)-1]
	}
	return total, g.Wait()
}

func (s *Service) report(ctx context.Context, ms []Mismatch) {
	for _, m := range ms {
		mismatchesTotal.WithLabelValues(m.Subject).Inc()
		logger.FromContext(ctx).Error("ledger mismatch",
			zap.String("subject", m.Subject),
			zap.String("subject_id", m.SubjectID),
			zap.String("check", m.Check),
			zap.Int64("expected", m.Expected),
			zap.Int64("actual", m.Actual),
		)
	}
}
