package taskname

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcileTasks(t *testing.T) {
	task, err := NewReconcileCampaignTask("123")
	require.NoError(t, err)
	require.Equal(t, ReconcileCampaign, task.Type())

	p, err := ParseReconcilePayload(task)
	require.NoError(t, err)
	require.Equal(t, "123", p.SubjectID)

	task, err = NewReconcileAllTask()
	require.NoError(t, err)
	require.Equal(t, ReconcileAll, task.Type())
	require.JSONEq(t, `{}`, string(task.Payload()))
}
