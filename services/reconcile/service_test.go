package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/task"
	"engagement-ledger/pkg/taskname"
	"engagement-ledger/services/account"
	"engagement-ledger/services/action"
	"engagement-ledger/services/campaign"
	"engagement-ledger/services/ledgererr"
	"engagement-ledger/services/testutil"
	"engagement-ledger/services/txlog"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type testEnv struct {
	db        *gorm.DB
	svc       *Service
	accounts  *account.Service
	campaigns *campaign.Service
	actions   *action.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t, &account.Account{}, &txlog.Transaction{}, &campaign.Campaign{}, &action.Action{})
	ids := &testutil.IDs{}
	logs := txlog.NewService(txlog.Params{DB: db})
	accounts := account.NewService(account.Params{DB: db, TxLog: logs, IDs: ids})
	campaigns := campaign.NewService(campaign.ServiceParams{DB: db, IDs: ids, Accounts: accounts})
	actions := action.NewService(action.ServiceParams{DB: db, IDs: ids, Accounts: accounts, Campaigns: campaigns})

	cfg := &config.Config{}
	cfg.Reconcile.Concurrency = 4
	cfg.Reconcile.PageSize = 2

	return &testEnv{
		db:        db,
		svc:       NewService(Params{DB: db, Config: cfg, TxLog: logs}),
		accounts:  accounts,
		campaigns: campaigns,
		actions:   actions,
	}
}

// seed runs a small but complete history: a grant, a completed campaign, an
// open one with progress and a cancelled one.
func (e *testEnv) seed(t *testing.T) (completed, open, cancelled *campaign.Campaign) {
	t.Helper()
	ctx := context.Background()

	_, err := e.accounts.OpenAccount(ctx, "owner")
	require.NoError(t, err)
	_, err = e.accounts.GrantCredits(ctx, "owner", 1000, "seed")
	require.NoError(t, err)

	mk := func(target int64) *campaign.Campaign {
		c, err := e.campaigns.CreateCampaign(ctx, campaign.CreateInput{
			OwnerID: "owner", Kind: campaign.KindVideo, ActionType: campaign.ActionView, CreditsPerAction: 7, TargetCount: target,
		})
		require.NoError(t, err)
		return c
	}
	submit := func(performer, campaignID string) {
		raw, err := json.Marshal(action.ViewEvidence{Views: action.CounterDelta{Before: 1, After: 2}})
		require.NoError(t, err)
		_, err = e.actions.SubmitAction(ctx, action.SubmitInput{
			PerformerID:  performer,
			CampaignID:   campaignID,
			ActionType:   campaign.ActionView,
			Verification: action.Verification{Verified: true, Details: raw},
		})
		require.NoError(t, err)
	}

	completed, open, cancelled = mk(2), mk(5), mk(3)
	submit("u1", completed.ID)
	submit("u2", completed.ID)
	submit("u1", open.ID)
	_, err = e.campaigns.CancelWithRefund(ctx, cancelled.ID, "owner")
	require.NoError(t, err)
	return completed, open, cancelled
}

func checks(ms []Mismatch) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Check)
	}
	return out
}

func TestReconcileAllCleanLedger(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	report, err := env.svc.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Mismatches)
	require.Equal(t, 3, report.Accounts)
	require.Equal(t, 3, report.Campaigns)
}

func TestReconcileAccountDetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	require.NoError(t, env.db.Exec("UPDATE accounts SET balance = balance + 1, total_earned = total_earned + 3 WHERE id = ?", "u1").Error)

	ms, err := env.svc.ReconcileAccount(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"balance_equals_ledger", "total_earned_equals_earn"}, checks(ms))

	ms, err = env.svc.ReconcileAccount(ctx, "u2")
	require.NoError(t, err)
	require.Empty(t, ms)

	_, err = env.svc.ReconcileAccount(ctx, "ghost")
	require.ErrorIs(t, err, ledgererr.ErrNotFound)
}

func TestReconcileCampaignDetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	_, open, cancelled := env.seed(t)
	ctx := context.Background()

	require.NoError(t, env.db.Exec("UPDATE campaigns SET current_count = 2 WHERE id = ?", open.ID).Error)

	ms, err := env.svc.ReconcileCampaign(ctx, open.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"conservation", "actions_equal_current_count", "actions_credits_equal_released"}, checks(ms))

	ms, err = env.svc.ReconcileCampaign(ctx, cancelled.ID)
	require.NoError(t, err)
	require.Empty(t, ms)

	require.NoError(t, env.db.Exec("UPDATE campaigns SET status = ? WHERE id = ?", string(campaign.StatusActive), cancelled.ID).Error)
	ms, err = env.svc.ReconcileCampaign(ctx, cancelled.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"completed_iff_exhausted", "no_refund_while_open"}, checks(ms))

	report, err := env.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Len(t, report.Mismatches, 5)
}

func TestReconcileTaskHandlers(t *testing.T) {
	env := newTestEnv(t)
	completed, _, _ := env.seed(t)
	h := NewTaskHandler(env.svc)
	ctx := context.Background()

	at, err := taskname.NewReconcileAccountTask("owner")
	require.NoError(t, err)
	require.NoError(t, h.HandleReconcileAccountTask(ctx, at))

	ct, err := taskname.NewReconcileCampaignTask(completed.ID)
	require.NoError(t, err)
	require.NoError(t, h.HandleReconcileCampaignTask(ctx, ct))

	all, err := taskname.NewReconcileAllTask()
	require.NoError(t, err)
	require.NoError(t, h.HandleReconcileAllTask(ctx, all))

	missing, err := taskname.NewReconcileCampaignTask("missing")
	require.NoError(t, err)
	require.ErrorIs(t, h.HandleReconcileCampaignTask(ctx, missing), ledgererr.ErrNotFound)

	bad := asynq.NewTask(taskname.ReconcileAccount, []byte("{"))
	require.ErrorIs(t, h.HandleReconcileAccountTask(ctx, bad), asynq.SkipRetry)

	mux := asynq.NewServeMux()
	RegisterTasks(mux, h)
	require.NoError(t, mux.ProcessTask(ctx, at))
}

func TestSchedulerTickEnqueuesFullPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	enq := task.NewMockEnqueuer(ctrl)
	enq.EXPECT().
		Enqueue(gomock.Any(), gomock.Cond(func(x any) bool {
			tk, ok := x.(*asynq.Task)
			return ok && tk.Type() == taskname.ReconcileAll
		}), gomock.Any(), gomock.Any()).
		Return(&asynq.TaskInfo{ID: "task-1"}, nil)

	cfg := &config.Config{}
	cfg.Reconcile.Interval = time.Minute
	s := NewScheduler(cfg, enq)
	require.Equal(t, time.Minute, s.interval)

	s.tick(context.Background())
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	s := NewScheduler(&config.Config{}, nil)
	require.Equal(t, time.Hour, s.interval)
}
