package action

import (
	"engagement-ledger/pkg/middleware"

	"go.uber.org/fx"
)

var Module = fx.Module("action.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("action.gateway",
	fx.Provide(
		middleware.NewSubmitLimiter,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
