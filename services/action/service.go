package action

import (
	"context"
	"strings"
	"time"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/db"
	"engagement-ledger/pkg/db/option"
	"engagement-ledger/pkg/db/pagination"
	"engagement-ledger/pkg/gen"
	"engagement-ledger/pkg/logger"
	"engagement-ledger/pkg/repository"
	"engagement-ledger/pkg/retry"
	"engagement-ledger/pkg/task"
	"engagement-ledger/pkg/taskname"
	"engagement-ledger/services/account"
	"engagement-ledger/services/campaign"
	"engagement-ledger/services/ledgererr"
	"engagement-ledger/services/txlog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("engagement-ledger/action")

var outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_action_outcomes_total",
	Help: "Action submissions by final outcome.",
}, []string{"outcome"})

type Service struct {
	db        *gorm.DB
	ids       gen.IDGenerator
	enqueuer  task.Enqueuer
	accounts  *account.Service
	campaigns *campaign.Service
	policy    retry.Policy

	action repository.Repository[Action]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Config    *config.Config `optional:"true"`
	IDs       gen.IDGenerator
	Enqueuer  task.Enqueuer `optional:"true"`
	Accounts  *account.Service
	Campaigns *campaign.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		ids:       p.IDs,
		enqueuer:  p.Enqueuer,
		accounts:  p.Accounts,
		campaigns: p.Campaigns,
		policy:    retry.NewPolicy(p.Config),
		action:    repository.ProvideStore[Action](p.DB),
	}
}

// SubmitAction pays the campaign's per action reward to the performer when
// the attempt is verified and not yet rewarded. The dedup reservation, the
// campaign progress and the credit commit or roll back together.
func (s *Service) SubmitAction(ctx context.Context, in SubmitInput) (*Result, error) {
	ctx, span := tracer.Start(ctx, "action.SubmitAction")
	defer span.End()
	span.SetAttributes(
		attribute.String("performer_id", in.PerformerID),
		attribute.String("campaign_id", in.CampaignID),
		attribute.String("action_type", string(in.ActionType)),
	)

	zapLog := logger.FromContext(ctx).With(
		zap.String("performer_id", in.PerformerID),
		zap.String("campaign_id", in.CampaignID),
		zap.String("action_type", string(in.ActionType)),
		zap.Bool("verified", in.Verification.Verified),
		zap.ByteString("details", in.Verification.Details),
	)

	res, err := s.submit(ctx, in)
	outcome := "applied"
	if err != nil {
		outcome = strings.ToLower(ledgererr.Reason(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	outcomesTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		span.SetStatus(codes.Error, outcome)
		if ledgererr.IsDomain(err) {
			zapLog.Warn("action rejected", zap.String("reason", ledgererr.Reason(err)), zap.Error(err))
		} else {
			zapLog.Error("failed to submit action", zap.Error(err))
		}
		return nil, err
	}

	zapLog.Info("action applied",
		zap.String("action_id", res.Action.ID),
		zap.Int64("credits_earned", res.CreditsEarned),
		zap.Int64("new_balance", res.NewBalance),
		zap.String("campaign_status", string(res.CampaignStatus)),
	)
	return res, nil
}

func (s *Service) submit(ctx context.Context, in SubmitInput) (*Result, error) {
	if in.PerformerID == "" {
		return nil, ledgererr.InvalidArgument("performer_id", "must not be empty")
	}
	if in.CampaignID == "" {
		return nil, ledgererr.InvalidArgument("campaign_id", "must not be empty")
	}
	if _, ok := campaign.ParseActionType(string(in.ActionType)); !ok {
		return nil, ledgererr.InvalidArgument("action_type", "must be VIEW, LIKE, COMMENT or FOLLOW")
	}

	// owner, action type and credits per action never change after creation,
	// so this read is safe to act on outside the unit of work.
	c, err := s.campaigns.GetCampaign(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}
	if in.PerformerID == c.OwnerAccountID {
		return nil, ledgererr.ErrSelfAction
	}
	if in.ActionType != c.ActionType {
		return nil, ledgererr.InvalidArgument("action_type", "campaign pays for "+string(c.ActionType))
	}

	evidence, err := verify(in)
	if err != nil {
		return nil, err
	}

	var (
		row   *Action
		after *campaign.Campaign
		entry *txlog.Transaction
	)
	err = retry.Do(ctx, s.policy, "action.submit", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.accounts.EnsureTx(ctx, tx, in.PerformerID); err != nil {
				return err
			}

			a := &Action{
				ID:                 s.ids.NextID(),
				PerformerAccountID: in.PerformerID,
				CampaignID:         in.CampaignID,
				ActionType:         in.ActionType,
				CreditsEarned:      c.CreditsPerAction,
				Evidence:           evidence,
				CreatedAt:          time.Now().UTC(),
			}
			if err := s.action.WithTrx(tx).Create(ctx, a); err != nil {
				if db.IsDuplicate(err) {
					return ledgererr.ErrAlreadyPerformed
				}
				return err
			}

			progressed, err := s.campaigns.ApplyProgressTx(ctx, tx, in.CampaignID, c.CreditsPerAction)
			if err != nil {
				return err
			}

			e, err := s.accounts.AdjustBalanceTx(ctx, tx, account.Credit(in.PerformerID, c.CreditsPerAction, txlog.KindEarn, a.ID))
			if err != nil {
				return err
			}

			row, after, entry = a, progressed, e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	txlog.Observe(entry)
	if after.Status == campaign.StatusCompleted {
		s.enqueueCampaignReconcile(ctx, after.ID)
	}

	return &Result{
		Action:         row,
		CreditsEarned:  row.CreditsEarned,
		NewBalance:     entry.BalanceAfter,
		CampaignStatus: after.Status,
	}, nil
}

// verify applies the pass-through checks on the verifier's answer and
// returns the details to store with the action.
func verify(in SubmitInput) (datatypes.JSON, error) {
	if !in.Verification.Verified {
		return nil, ledgererr.ErrNotVerified
	}
	ev, err := DecodeEvidence(in.ActionType, in.Verification.Details)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrNotVerified, err.Error())
	}
	if err := ev.Check(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.ErrNotVerified, err.Error())
	}
	return datatypes.JSON(in.Verification.Details), nil
}

// ListActions returns the actions recorded against a campaign, oldest first.
func (s *Service) ListActions(ctx context.Context, campaignID string, page pagination.Pagination) ([]*Action, *pagination.PageInfo, error) {
	ctx, span := tracer.Start(ctx, "action.ListActions")
	defer span.End()

	if _, err := s.campaigns.GetCampaign(ctx, campaignID); err != nil {
		return nil, nil, err
	}

	rows, err := s.action.Find(ctx, nil,
		option.WithEqual("campaign_id", campaignID),
		option.ApplyPagination(page),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "asc",
			Allow:   map[string]bool{"id": true},
		}),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list actions", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, nil, err
	}

	rows, info := pagination.BuildCursorPageInfo(rows, option.NormalizeLimit(page.Limit), func(a *Action) pagination.Cursor {
		return pagination.Cursor{ID: a.ID}
	})
	return rows, info, nil
}

func (s *Service) enqueueCampaignReconcile(ctx context.Context, campaignID string) {
	if s.enqueuer == nil {
		return
	}
	t, err := taskname.NewReconcileCampaignTask(campaignID)
	if err == nil {
		_, err = s.enqueuer.Enqueue(ctx, t)
	}
	if err != nil {
		logger.FromContext(ctx).Warn("failed to enqueue follow-up task",
			zap.String("task", taskname.ReconcileCampaign), zap.String("campaign_id", campaignID), zap.Error(err))
	}
}
