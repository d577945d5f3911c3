package txlog

import "go.uber.org/fx"

var Module = fx.Module("txlog.service",
	fx.Provide(NewService),
)
