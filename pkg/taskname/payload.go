package taskname

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// ReconcilePayload names the account or campaign a reconcile task checks.
// ReconcileAll carries no subject.
type ReconcilePayload struct {
	SubjectID string `json:"subject_id,omitempty"`
}

func newReconcileTask(name, subjectID string, opts ...asynq.Option) (*asynq.Task, error) {
	b, err := json.Marshal(ReconcilePayload{SubjectID: subjectID})
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.MaxRetry(3), asynq.Timeout(time.Minute)}, opts...)
	return asynq.NewTask(name, b, opts...), nil
}

func NewReconcileAccountTask(accountID string) (*asynq.Task, error) {
	return newReconcileTask(ReconcileAccount, accountID)
}

func NewReconcileCampaignTask(campaignID string) (*asynq.Task, error) {
	return newReconcileTask(ReconcileCampaign, campaignID)
}

func NewReconcileAllTask() (*asynq.Task, error) {
	return newReconcileTask(ReconcileAll, "", asynq.Timeout(30*time.Minute))
}

func ParseReconcilePayload(t *asynq.Task) (ReconcilePayload, error) {
	var p ReconcilePayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}
