package reconcile

import (
	"context"
	"fmt"

	"engagement-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskHandler runs reconcile tasks pulled from the queue.
type TaskHandler struct {
	service *Service
}

func NewTaskHandler(svc *Service) *TaskHandler {
	return &TaskHandler{service: svc}
}

func RegisterTasks(mux *asynq.ServeMux, h *TaskHandler) {
	mux.HandleFunc(taskname.ReconcileAccount, h.HandleReconcileAccountTask)
	mux.HandleFunc(taskname.ReconcileCampaign, h.HandleReconcileCampaignTask)
	mux.HandleFunc(taskname.ReconcileAll, h.HandleReconcileAllTask)
}

func (h *TaskHandler) HandleReconcileAccountTask(ctx context.Context, t *asynq.Task) error {
	p, err := taskname.ParseReconcilePayload(t)
	if err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(zap.String("task_type", t.Type()), zap.String("account_id", p.SubjectID))
	zapLog.Info("▶️ start reconcile account")

	ms, err := h.service.ReconcileAccount(ctx, p.SubjectID)
	if err != nil {
		zapLog.Error("❌ reconcile account failed", zap.Error(err))
		return err
	}

	zapLog.Info("✅ reconcile account done", zap.Int("mismatches", len(ms)))
	return nil
}

func (h *TaskHandler) HandleReconcileCampaignTask(ctx context.Context, t *asynq.Task) error {
	p, err := taskname.ParseReconcilePayload(t)
	if err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(zap.String("task_type", t.Type()), zap.String("campaign_id", p.SubjectID))
	zapLog.Info("▶️ start reconcile campaign")

	ms, err := h.service.ReconcileCampaign(ctx, p.SubjectID)
	if err != nil {
		zapLog.Error("❌ reconcile campaign failed", zap.Error(err))
		return err
	}

	zapLog.Info("✅ reconcile campaign done", zap.Int("mismatches", len(ms)))
	return nil
}

func (h *TaskHandler) HandleReconcileAllTask(ctx context.Context, t *asynq.Task) error {
	zapLog := zap.L().With(zap.String("task_type", t.Type()))
	zapLog.Info("▶️ start full reconciliation")

	report, err := h.service.ReconcileAll(ctx)
	if err != nil {
		zapLog.Error("❌ full reconciliation failed", zap.Error(err))
		return err
	}

	zapLog.Info("✅ full reconciliation done",
		zap.Int("accounts", report.Accounts),
		zap.Int("campaigns", report.Campaigns),
		zap.Int("mismatches", len(report.Mismatches)),
	)
	return nil
}
