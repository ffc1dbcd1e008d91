package db

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fintrack/internal/model"
)

// Open connects to the configured driver. Driver errors such as duplicate keys
// are translated into gorm sentinel errors.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "mysql":
		db, err = NewMySQL(dsn, cfg)
	case "postgres":
		db, err = NewPostgres(dsn, cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate creates or updates the schema. When reset is true existing tables are dropped first.
func Migrate(db *gorm.DB, reset bool, log *slog.Logger) error {
	if reset {
		log.Warn("RESET_DB=true detected, dropping all tables")
		for _, table := range []interface{}{&model.Transaction{}, &model.User{}} {
			if err := db.Migrator().DropTable(table); err != nil {
				log.Warn("failed to drop table (may not exist)", slog.Any("error", err))
			}
		}
	}

	if err := db.AutoMigrate(&model.User{}, &model.Transaction{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
