package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/db"
	"engagement-ledger/pkg/gen"
	"engagement-ledger/pkg/hashistack/servicediscover"
	"engagement-ledger/pkg/health"
	"engagement-ledger/pkg/httpapi"
	"engagement-ledger/pkg/logger"
	"engagement-ledger/pkg/otelcol"
	"engagement-ledger/pkg/profiling"
	"engagement-ledger/pkg/redis"
	"engagement-ledger/pkg/sequence"
	"engagement-ledger/pkg/server"
	"engagement-ledger/pkg/task"
	"engagement-ledger/services/account"
	"engagement-ledger/services/action"
	"engagement-ledger/services/campaign"
	"engagement-ledger/services/txlog"
)

func main() {
	opts := []fx.Option{
		config.Select(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		gen.Module,
		health.Module,
		httpapi.Module,
		fx.Invoke(migrate),
		txlog.Module,
		account.Module,
		account.Gateway,
		campaign.Module,
		campaign.Gateway,
		action.Module,
		action.Gateway,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		servicediscover.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
