package reconcile

import "go.uber.org/fx"

var Module = fx.Module("reconcile.service",
	fx.Provide(NewService),
)

// Worker registers the reconcile handlers on the asynq mux and runs the
// periodic scheduler.
var Worker = fx.Module("reconcile.worker",
	fx.Provide(NewTaskHandler, NewScheduler),
	fx.Invoke(RegisterTasks, StartScheduler),
)
