package campaign

import "go.uber.org/fx"

var Module = fx.Module("campaign.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("campaign.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
