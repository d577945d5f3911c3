package campaign

import (
	"context"
	"errors"
	"math"
	"time"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/db/option"
	"engagement-ledger/pkg/gen"
	"engagement-ledger/pkg/logger"
	"engagement-ledger/pkg/repository"
	"engagement-ledger/pkg/retry"
	"engagement-ledger/pkg/sequence"
	"engagement-ledger/pkg/task"
	"engagement-ledger/pkg/taskname"
	"engagement-ledger/services/account"
	"engagement-ledger/services/ledgererr"
	"engagement-ledger/services/txlog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("engagement-ledger/campaign")

// ========================================================
// Service Definition
// ========================================================

type Service struct {
	db       *gorm.DB
	ids      gen.IDGenerator
	seq      sequence.Generator
	enqueuer task.Enqueuer
	accounts *account.Service
	policy   retry.Policy

	campaign repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Config   *config.Config `optional:"true"`
	IDs      gen.IDGenerator
	Seq      sequence.Generator `optional:"true"`
	Enqueuer task.Enqueuer      `optional:"true"`
	Accounts *account.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		ids:      p.IDs,
		seq:      p.Seq,
		enqueuer: p.Enqueuer,
		accounts: p.Accounts,
		policy:   retry.NewPolicy(p.Config),
		campaign: repository.ProvideStore[Campaign](p.DB),
	}
}

// ========================================================
// Escrow operations
// ========================================================

// CreateCampaign debits CreditsPerAction * TargetCount from the owner and
// opens the campaign in the same unit of work.
func (s *Service) CreateCampaign(ctx context.Context, in CreateInput) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "campaign.CreateCampaign")
	defer span.End()

	zapLog := logger.FromContext(ctx).With(
		zap.String("owner_id", in.OwnerID),
		zap.String("kind", string(in.Kind)),
		zap.String("action_type", string(in.ActionType)),
		zap.Int64("credits_per_action", in.CreditsPerAction),
		zap.Int64("target_count", in.TargetCount),
	)

	in, err := normalize(in)
	if err != nil {
		zapLog.Warn("campaign creation rejected", zap.String("reason", ledgererr.Reason(err)), zap.Error(err))
		return nil, err
	}
	total := in.CreditsPerAction * in.TargetCount

	id := s.ids.NextID()
	span.SetAttributes(attribute.String("campaign_id", id), attribute.Int64("total_credits", total))

	c := &Campaign{
		ID:               id,
		Code:             s.nextCode(ctx),
		OwnerAccountID:   in.OwnerID,
		Kind:             in.Kind,
		ActionType:       in.ActionType,
		TargetRef:        in.TargetRef,
		CreditsPerAction: in.CreditsPerAction,
		TargetCount:      in.TargetCount,
		TotalCredits:     total,
		RemainingCredits: total,
		Status:           StatusActive,
	}

	var debit *txlog.Transaction
	err = retry.Do(ctx, s.policy, "campaign.create", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			entry, err := s.accounts.AdjustBalanceTx(ctx, tx, account.Debit(in.OwnerID, total, txlog.KindSpend, id))
			if err != nil {
				return err
			}
			debit = entry

			row := *c
			return s.campaign.WithTrx(tx).Create(ctx, &row)
		})
	})
	if err != nil {
		if ledgererr.IsDomain(err) {
			zapLog.Warn("campaign creation rejected", zap.String("reason", ledgererr.Reason(err)), zap.Error(err))
		} else {
			zapLog.Error("failed to create campaign", zap.Error(err))
		}
		return nil, err
	}

	txlog.Observe(debit)
	zapLog.Info("campaign created", zap.String("campaign_id", id), zap.Int64("escrowed", total))
	return s.GetCampaign(ctx, id)
}

// SetStatus moves a campaign between ACTIVE and PAUSED on behalf of its
// owner. Requesting the current status succeeds without writing.
func (s *Service) SetStatus(ctx context.Context, campaignID, ownerID string, target Status) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "campaign.SetStatus")
	defer span.End()

	zapLog := logger.FromContext(ctx).With(
		zap.String("campaign_id", campaignID),
		zap.String("owner_id", ownerID),
		zap.String("target_status", string(target)),
	)

	if campaignID == "" {
		err := ledgererr.InvalidArgument("campaign_id", "must not be empty")
		zapLog.Warn("status change rejected", zap.String("reason", ledgererr.Reason(err)), zap.Error(err))
		return nil, err
	}

	var out *Campaign
	err := retry.Do(ctx, s.policy, "campaign.set_status", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := s.campaign.WithTrx(tx).FindOne(ctx, nil, option.WithID(campaignID), option.WithLockingUpdate())
			if err != nil {
				return err
			}
			if c == nil {
				return ledgererr.NotFound("campaign", campaignID)
			}
			if c.OwnerAccountID != ownerID {
				return ledgererr.ErrUnauthorized
			}
			if target != StatusActive && target != StatusPaused {
				return ledgererr.Wrap(ledgererr.ErrInvalidTransition, "only ACTIVE and PAUSED can be requested")
			}
			if c.Status == target {
				out = c
				return nil
			}
			if c.Status != StatusActive && c.Status != StatusPaused {
				return ledgererr.Wrap(ledgererr.ErrInvalidTransition, "campaign is "+string(c.Status))
			}

			res := tx.WithContext(ctx).Model(&Campaign{}).
				Where("id = ? AND status = ?", campaignID, c.Status).
				Updates(map[string]any{"status": target, "updated_at": time.Now().UTC()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ledgererr.Wrap(ledgererr.ErrInvalidTransition, "campaign changed concurrently")
			}

			c.Status = target
			out = c
			return nil
		})
	})
	if err != nil {
		if ledgererr.IsDomain(err) {
			zapLog.Warn("status change rejected", zap.String("reason", ledgererr.Reason(err)), zap.Error(err))
		} else {
			zapLog.Error("failed to change campaign status", zap.Error(err))
		}
		return nil, err
	}

	zapLog.Info("campaign status set", zap.String("status", string(out.Status)))
	return out, nil
}

// ApplyProgressTx releases credits for one accepted action inside tx. The
// guard and the mutation are one conditional UPDATE, so concurrent callers
// can never push current_count past target_count or remaining_credits below
// zero. It fails with ErrCampaignExhausted, writing nothing, when the
// campaign is not ACTIVE or cannot pay credits once more.
func (s *Service) ApplyProgressTx(ctx context.Context, tx *gorm.DB, campaignID string, credits int64) (*Campaign, error) {
	if campaignID == "" {
		return nil, ledgererr.InvalidArgument("campaign_id", "must not be empty")
	}
	if credits <= 0 {
		return nil, ledgererr.InvalidArgument("credits", "must be a positive integer")
	}

	// status is assigned first: MySQL evaluates SET left to right and the
	// completion test must see the pre-update counters.
	res := tx.WithContext(ctx).Exec(`UPDATE campaigns SET
		status = CASE WHEN current_count + 1 >= target_count OR remaining_credits - ? < credits_per_action THEN ? ELSE status END,
		remaining_credits = remaining_credits - ?,
		current_count = current_count + 1,
		updated_at = ?
		WHERE id = ? AND status = ? AND remaining_credits >= ? AND current_count < target_count`,
		credits, string(StatusCompleted),
		credits,
		time.Now().UTC(),
		campaignID, string(StatusActive), credits,
	)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		c, err := s.campaign.WithTrx(tx).FindOne(ctx, nil, option.WithID(campaignID))
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, ledgererr.NotFound("campaign", campaignID)
		}
		return nil, ledgererr.Wrap(ledgererr.ErrCampaignExhausted, "campaign is "+string(c.Status)+" and cannot pay out")
	}

	after, err := s.campaign.WithTrx(tx).FindOne(ctx, nil, option.WithID(campaignID))
	if err != nil {
		return nil, err
	}
	return after, nil
}

// CancelWithRefund cancels a campaign that has not paid out yet and returns
// its remaining credits to the owner in the same unit of work.
func (s *Service) CancelWithRefund(ctx context.Context, campaignID, ownerID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "campaign.CancelWithRefund")
	defer span.End()

	zapLog := logger.FromContext(ctx).With(
		zap.String("campaign_id", campaignID),
		zap.String("owner_id", ownerID),
	)

	if campaignID == "" {
		err := ledgererr.InvalidArgument("campaign_id", "must not be empty")
		zapLog.Warn("cancellation rejected", zap.String("reason", ledgererr.Reason(err)), zap.Error(err))
		return 0, err
	}

	var (
		refunded int64
		entry    *txlog.Transaction
	)
	err := retry.Do(ctx, s.policy, "campaign.cancel", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := s.campaign.WithTrx(tx).FindOne(ctx, nil, option.WithID(campaignID), option.WithLockingUpdate())
			if err != nil {
				return err
			}
			if c == nil {
				return ledgererr.NotFound("campaign", campaignID)
			}
			if c.OwnerAccountID != ownerID {
				return ledgererr.ErrUnauthorized
			}
			if c.CurrentCount > 0 {
				return ledgererr.ErrCampaignHasActions
			}
			if c.Status != StatusActive && c.Status != StatusPaused {
				return ledgererr.Wrap(ledgererr.ErrInvalidTransition, "campaign is "+string(c.Status))
			}

			res := tx.WithContext(ctx).Model(&Campaign{}).
				Where("id = ? AND current_count = 0 AND remaining_credits = ? AND status IN ?",
					campaignID, c.RemainingCredits, []string{string(StatusActive), string(StatusPaused)}).
				Updates(map[string]any{
					"status":            StatusCancelled,
					"remaining_credits": 0,
					"refunded_credits":  gorm.Expr("refunded_credits + ?", c.RemainingCredits),
					"updated_at":        time.Now().UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return classifyCancelMiss(ctx, tx, campaignID)
			}

			refunded = c.RemainingCredits
			if refunded == 0 {
				return nil
			}
			e, err := s.accounts.AdjustBalanceTx(ctx, tx, account.Credit(ownerID, refunded, txlog.KindRefund, campaignID))
			if err != nil {
				return err
			}
			entry = e
			return nil
		})
	})
	if err != nil {
		if ledgererr.IsDomain(err) {
			zapLog.Warn("cancellation rejected", zap.String("reason", ledgererr.Reason(err)), zap.Error(err))
		} else {
			zapLog.Error("failed to cancel campaign", zap.Error(err))
		}
		return 0, err
	}

	txlog.Observe(entry)
	zapLog.Info("campaign cancelled", zap.Int64("refunded", refunded))
	s.enqueueOwnerReconcile(ctx, ownerID)
	return refunded, nil
}

// classifyCancelMiss explains why the guarded cancel touched no row. It only
// runs when the row changed between the read and the update, which row locks
// rule out on server databases.
func classifyCancelMiss(ctx context.Context, tx *gorm.DB, campaignID string) error {
	var c Campaign
	err := tx.WithContext(ctx).Where("id = ?", campaignID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledgererr.NotFound("campaign", campaignID)
	}
	if err != nil {
		return err
	}
	if c.CurrentCount > 0 {
		return ledgererr.ErrCampaignHasActions
	}
	return ledgererr.Wrap(ledgererr.ErrInvalidTransition, "campaign is "+string(c.Status))
}

// ========================================================
// Queries
// ========================================================

func (s *Service) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "campaign.GetCampaign")
	defer span.End()

	if campaignID == "" {
		return nil, ledgererr.InvalidArgument("campaign_id", "must not be empty")
	}

	c, err := s.campaign.FindOne(ctx, nil, option.WithID(campaignID))
	if err != nil {
		logger.FromContext(ctx).Error("failed to load campaign", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, err
	}
	if c == nil {
		return nil, ledgererr.NotFound("campaign", campaignID)
	}
	return c, nil
}

// ========================================================
// Helpers
// ========================================================

func normalize(in CreateInput) (CreateInput, error) {
	if in.OwnerID == "" {
		return in, ledgererr.InvalidArgument("owner_id", "must not be empty")
	}
	if in.CreditsPerAction <= 0 {
		return in, ledgererr.InvalidArgument("credits_per_action", "must be a positive integer")
	}
	if in.TargetCount <= 0 {
		return in, ledgererr.InvalidArgument("target_count", "must be a positive integer")
	}
	if in.CreditsPerAction > math.MaxInt64/in.TargetCount {
		return in, ledgererr.InvalidArgument("target_count", "total credits overflow")
	}

	if in.Kind == "" {
		in.Kind = KindVideo
		if in.ActionType == ActionFollow {
			in.Kind = KindFollow
		}
	}

	switch in.Kind {
	case KindFollow:
		if in.ActionType == "" {
			in.ActionType = ActionFollow
		}
		if in.ActionType != ActionFollow {
			return in, ledgererr.InvalidArgument("action_type", "follow campaigns only accept FOLLOW")
		}
	case KindVideo:
		switch in.ActionType {
		case ActionView, ActionLike, ActionComment:
		default:
			return in, ledgererr.InvalidArgument("action_type", "video campaigns accept VIEW, LIKE or COMMENT")
		}
	default:
		return in, ledgererr.InvalidArgument("kind", "must be VIDEO or FOLLOW")
	}
	return in, nil
}

// nextCode asks the sequence for a display code. Codes are cosmetic, so a
// sequence outage leaves the code empty instead of failing the escrow.
func (s *Service) nextCode(ctx context.Context) string {
	if s.seq == nil {
		return ""
	}
	code, err := s.seq.NextCampaignCode(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to generate campaign code", zap.Error(err))
		return ""
	}
	return code
}

// enqueueOwnerReconcile schedules a ledger check for the owner after a
// refund. Failures are logged, the refund is already committed.
func (s *Service) enqueueOwnerReconcile(ctx context.Context, ownerID string) {
	if s.enqueuer == nil {
		return
	}
	t, err := taskname.NewReconcileAccountTask(ownerID)
	if err == nil {
		_, err = s.enqueuer.Enqueue(ctx, t)
	}
	if err != nil {
		logger.FromContext(ctx).Warn("failed to enqueue follow-up task",
			zap.String("task", taskname.ReconcileAccount), zap.String("account_id", ownerID), zap.Error(err))
	}
}
