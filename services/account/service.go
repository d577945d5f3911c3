package account

import (
	"context"
	"errors"
	"time"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/db/option"
	"engagement-ledger/pkg/gen"
	"engagement-ledger/pkg/logger"
	"engagement-ledger/pkg/repository"
	"engagement-ledger/pkg/retry"
	"engagement-ledger/services/ledgererr"
	"engagement-ledger/services/txlog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("engagement-ledger/account")

// Service is the account store. AdjustBalanceTx is the only code path that
// writes accounts.balance.
type Service struct {
	db     *gorm.DB
	repo   repository.Repository[Account]
	txlog  *txlog.Service
	ids    gen.IDGenerator
	policy retry.Policy
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config `optional:"true"`
	TxLog  *txlog.Service
	IDs    gen.IDGenerator
}

func NewService(p Params) *Service {
	return &Service{
		db:     p.DB,
		repo:   repository.ProvideStore[Account](p.DB),
		txlog:  p.TxLog,
		ids:    p.IDs,
		policy: retry.NewPolicy(p.Config),
	}
}

// OpenAccount creates a zero balance account for id. Opening an existing
// account returns it unchanged.
func (s *Service) OpenAccount(ctx context.Context, id string) (*Account, error) {
	ctx, span := tracer.Start(ctx, "account.OpenAccount")
	defer span.End()

	if id == "" {
		err := ledgererr.InvalidArgument("account_id", "must not be empty")
		logger.FromContext(ctx).Warn("open account rejected", zap.String("reason", ledgererr.Reason(err)), zap.String("account_id", id))
		return nil, err
	}

	var out *Account
	err := retry.Do(ctx, s.policy, "account.open", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.EnsureTx(ctx, tx, id); err != nil {
				return err
			}
			acct, err := s.repo.WithTrx(tx).FindOne(ctx, nil, option.WithID(id))
			if err != nil {
				return err
			}
			out = acct
			return nil
		})
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to open account", zap.String("account_id", id), zap.Error(err))
		return nil, err
	}
	return out, nil
}

// EnsureTx inserts a zero balance account for id unless one exists.
func (s *Service) EnsureTx(ctx context.Context, tx *gorm.DB, id string) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Account{ID: id}).Error
}

// AdjustBalance applies adj in its own unit of work and returns the
// transaction row written with it.
func (s *Service) AdjustBalance(ctx context.Context, adj Adjustment) (*txlog.Transaction, error) {
	ctx, span := tracer.Start(ctx, "account.AdjustBalance")
	defer span.End()
	span.SetAttributes(
		attribute.String("account_id", adj.AccountID),
		attribute.String("kind", string(adj.Kind)),
		attribute.Int64("delta", adj.Delta),
	)

	var entry *txlog.Transaction
	err := retry.Do(ctx, s.policy, "account.adjust", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			e, err := s.AdjustBalanceTx(ctx, tx, adj)
			if err != nil {
				return err
			}
			entry = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	txlog.Observe(entry)
	return entry, nil
}

// AdjustBalanceTx applies balance += delta inside tx, guarded by the floor and
// the int64 ceilings in the same UPDATE statement, bumps the account's
// lifetime counters and appends the matching transaction row. Nothing is
// written when a guard fails.
func (s *Service) AdjustBalanceTx(ctx context.Context, tx *gorm.DB, adj Adjustment) (*txlog.Transaction, error) {
	if err := validate(adj); err != nil {
		logRejected(ctx, adj, ledgererr.Reason(err))
		return nil, err
	}

	updates := map[string]any{
		"balance":    gorm.Expr("balance + ?", adj.Delta),
		"seq":        gorm.Expr("seq + 1"),
		"updated_at": time.Now().UTC(),
	}
	for col, expr := range adj.counterUpdates() {
		updates[col] = expr
	}

	q := tx.WithContext(ctx).Model(&Account{}).Where("id = ?", adj.AccountID)
	if adj.MinBalance != Unbounded {
		q = q.Where("balance + ? >= ?", adj.Delta, adj.MinBalance)
	}
	for _, c := range adj.ceilings() {
		q = q.Where(c.column+" <= ?", c.max)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		var current Account
		err := tx.WithContext(ctx).Where("id = ?", adj.AccountID).Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logRejected(ctx, adj, ledgererr.ReasonNotFound)
			return nil, ledgererr.NotFound("account", adj.AccountID)
		}
		if err != nil {
			return nil, err
		}
		if adj.overflows(current) {
			logRejected(ctx, adj, ledgererr.ReasonInvalidArgument)
			return nil, ledgererr.InvalidArgument("amount", "balance would overflow")
		}
		logRejected(ctx, adj, ledgererr.ReasonInsufficientBalance)
		return nil, ledgererr.ErrInsufficientBalance
	}

	var after Account
	if err := tx.WithContext(ctx).Select("balance", "seq").Where("id = ?", adj.AccountID).Take(&after).Error; err != nil {
		return nil, err
	}

	entry := &txlog.Transaction{
		ID:           s.ids.NextID(),
		AccountID:    adj.AccountID,
		Seq:          after.Seq,
		Kind:         adj.Kind,
		Amount:       adj.Delta,
		BalanceAfter: after.Balance,
		ReferenceID:  adj.ReferenceID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.txlog.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// GetBalance returns the account as stored right now. The value is a
// snapshot; never decide a later write from it.
func (s *Service) GetBalance(ctx context.Context, id string) (*Account, error) {
	ctx, span := tracer.Start(ctx, "account.GetBalance")
	defer span.End()

	if id == "" {
		return nil, ledgererr.InvalidArgument("account_id", "must not be empty")
	}

	acct, err := s.repo.FindOne(ctx, nil, option.WithID(id))
	if err != nil {
		logger.FromContext(ctx).Error("failed to load account", zap.String("account_id", id), zap.Error(err))
		return nil, err
	}
	if acct == nil {
		return nil, ledgererr.NotFound("account", id)
	}
	return acct, nil
}

// GrantCredits tops up an existing account outside of any campaign.
func (s *Service) GrantCredits(ctx context.Context, id string, amount int64, referenceID string) (*txlog.Transaction, error) {
	if amount <= 0 {
		err := ledgererr.InvalidArgument("amount", "must be a positive integer")
		logRejected(ctx, Credit(id, amount, txlog.KindGrant, referenceID), ledgererr.Reason(err))
		return nil, err
	}
	return s.AdjustBalance(ctx, Credit(id, amount, txlog.KindGrant, referenceID))
}

func validate(adj Adjustment) error {
	if adj.AccountID == "" {
		return ledgererr.InvalidArgument("account_id", "must not be empty")
	}
	if !adj.Kind.Valid() {
		return ledgererr.InvalidArgument("kind", "unknown transaction kind")
	}
	if adj.Delta == 0 || !adj.Kind.SignOK(adj.Delta) {
		return ledgererr.InvalidArgument("amount", "sign does not match "+string(adj.Kind))
	}
	return nil
}

func logRejected(ctx context.Context, adj Adjustment, reason string) {
	logger.FromContext(ctx).Warn("balance adjustment rejected",
		zap.String("reason", reason),
		zap.String("account_id", adj.AccountID),
		zap.String("kind", string(adj.Kind)),
		zap.Int64("delta", adj.Delta),
		zap.Int64("min_balance", adj.MinBalance),
		zap.String("reference_id", adj.ReferenceID),
	)
}
