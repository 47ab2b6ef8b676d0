package database

import (
	"fmt"
	"sync"

	"github.com/synaptica-ai/rigcast/pkg/common/config"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	db     *gorm.DB
	dbErr  error
	dbOnce sync.Once
)

// PostgresDSN renders the connection string for cfg.
func PostgresDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.PostgresHost,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresDB,
		cfg.PostgresPort,
		cfg.PostgresSSLMode,
	)
}

// GetPostgres opens the shared connection on first use.
func GetPostgres(cfg *config.Config) (*gorm.DB, error) {
	dbOnce.Do(func() {
		db, dbErr = gorm.Open(postgres.Open(PostgresDSN(cfg)), &gorm.Config{})
		if dbErr != nil {
			logger.Log.WithError(dbErr).Error("Failed to connect to PostgreSQL")
			return
		}
		logger.Log.WithField("host", cfg.PostgresHost).Info("Connected to PostgreSQL")
	})
	return db, dbErr
}

// Migrate runs AutoMigrate for every repository that needs a table.
func Migrate(conn *gorm.DB, models ...interface{}) error {
	if err := conn.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func ClosePostgres() error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
