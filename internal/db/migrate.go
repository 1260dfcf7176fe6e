package db

import (
	"betledger/internal/models"
)

// AutoMigrateLedger creates the wallet and bet tables in the ledger
// database.
func AutoMigrateLedger(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.Account{},
		&models.Bet{},
		&models.CreditTransaction{},
		&models.SystemSetting{},
	)
}

// AutoMigrateMarket creates the market catalog table in the market
// database.
func AutoMigrateMarket(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.Market{},
	)
}
