package database

import (
	"fmt"
	"log/slog"
	"time"

	"backoffice/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection opens the GORM pool. Migration is a separate step so the CLI can run it alone.
func NewConnection(dsn string, release bool) (*gorm.DB, error) {
	logLevel := logger.Warn
	if release {
		logLevel = logger.Error
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate auto-migrates every model the back office persists
func Migrate(db *gorm.DB, log *slog.Logger) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Role{},
		&model.Permission{},
		&model.AuditLog{},
		&model.Partner{},
		&model.Client{},
		&model.TaxBlock{},
		&model.TaxRate{},
		&model.ClientTaxBlock{},
		&model.TaxBlockTransfer{},
		&model.Machine{},
		&model.MachineMovement{},
		&model.Sale{},
		&model.Ticket{},
		&model.TicketMessage{},
		&model.ApprovalRequest{},
		&model.CommissionPayout{},
		&model.ClientRefund{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// At most one pending transfer per client
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_transfer_one_pending
		ON tax_block_transfers (client_id) WHERE status = 'PENDING'`).Error; err != nil {
		return fmt.Errorf("create pending transfer index: %w", err)
	}

	log.Info("database migrated")
	return nil
}
