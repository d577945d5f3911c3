package taskname

const (
	// Reconciliation tasks
	ReconcileAccount  = "ledger:reconcile:account"
	ReconcileCampaign = "ledger:reconcile:campaign"
	ReconcileAll      = "ledger:reconcile:all"
)
