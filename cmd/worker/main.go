package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/db"
	"engagement-ledger/pkg/logger"
	"engagement-ledger/pkg/otelcol"
	"engagement-ledger/pkg/profiling"
	"engagement-ledger/pkg/server"
	"engagement-ledger/pkg/task"
	"engagement-ledger/services/reconcile"
	"engagement-ledger/services/txlog"
)

func main() {
	opts := []fx.Option{
		config.Select(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		task.Client,
		task.Server,
		txlog.Module,
		reconcile.Module,
		reconcile.Worker,
		server.ProvideGRPCServer,
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
