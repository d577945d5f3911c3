package txlog

import (
	"context"

	"engagement-ledger/pkg/db/option"
	"engagement-ledger/pkg/db/pagination"
	"engagement-ledger/pkg/repository"
	"engagement-ledger/services/ledgererr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("engagement-ledger/txlog")

var adjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_balance_adjustments_total",
	Help: "Committed balance adjustments by transaction kind.",
}, []string{"kind"})

// Observe counts committed entries. Call it after the unit of work that
// appended them has committed.
func Observe(entries ...*Transaction) {
	for _, e := range entries {
		if e != nil {
			adjustmentsTotal.WithLabelValues(string(e.Kind)).Inc()
		}
	}
}

type Service struct {
	db   *gorm.DB
	repo repository.Repository[Transaction]
}

type Params struct {
	fx.In

	DB *gorm.DB
}

func NewService(p Params) *Service {
	return &Service{
		db:   p.DB,
		repo: repository.ProvideStore[Transaction](p.DB),
	}
}

// Append writes entry inside tx. It has no standalone variant: the only
// caller is the account store's adjustment, within the same unit of work as
// the balance change.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, entry *Transaction) error {
	return s.repo.WithTrx(tx).Create(ctx, entry)
}

// ListByAccount returns an account's entries in creation order.
func (s *Service) ListByAccount(ctx context.Context, accountID string, page pagination.Pagination) ([]*Transaction, *pagination.PageInfo, error) {
	ctx, span := tracer.Start(ctx, "txlog.ListByAccount")
	defer span.End()

	if accountID == "" {
		return nil, nil, ledgererr.InvalidArgument("account_id", "must not be empty")
	}

	rows, err := s.repo.Find(ctx, nil,
		option.WithEqual("account_id", accountID),
		option.ApplyPagination(page),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "seq",
			OrderBy: "asc",
			Allow:   map[string]bool{"seq": true},
		}),
	)
	if err != nil {
		return nil, nil, err
	}

	rows, info := pagination.BuildCursorPageInfo(rows, option.NormalizeLimit(page.Limit), func(t *Transaction) pagination.Cursor {
		return pagination.Cursor{Seq: t.Seq}
	})
	return rows, info, nil
}

// TotalsByAccount sums the account's history by kind.
func (s *Service) TotalsByAccount(ctx context.Context, accountID string) (Totals, error) {
	return s.TotalsByAccountTx(ctx, s.db, accountID)
}

func (s *Service) TotalsByAccountTx(ctx context.Context, tx *gorm.DB, accountID string) (Totals, error) {
	var rows []struct {
		Kind  Kind
		Total int64
		N     int64
	}
	err := tx.WithContext(ctx).Model(&Transaction{}).
		Select("kind, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS n").
		Where("account_id = ?", accountID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return Totals{}, err
	}

	var out Totals
	for _, r := range rows {
		out.Sum += r.Total
		out.Count += r.N
		switch r.Kind {
		case KindSpend:
			out.Spend += r.Total
		case KindEarn:
			out.Earn += r.Total
		case KindRefund:
			out.Refund += r.Total
		case KindGrant:
			out.Grant += r.Total
		}
	}
	return out, nil
}
