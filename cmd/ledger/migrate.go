package main

import (
	"engagement-ledger/services/account"
	"engagement-ledger/services/action"
	"engagement-ledger/services/campaign"
	"engagement-ledger/services/txlog"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// migrate brings the ledger tables, their unique indexes and check
// constraints up to date before the servers start.
func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&account.Account{},
		&txlog.Transaction{},
		&campaign.Campaign{},
		&action.Action{},
	)
	if err != nil {
		zap.L().Error("failed to migrate ledger schema", zap.Error(err))
		return err
	}
	zap.L().Info("ledger schema up to date")
	return nil
}
