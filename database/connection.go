package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Ananth-NQI/resellerbot-backend/internal/config"
	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
)

var DB *gorm.DB

// DSN builds the postgres connection string. On Cloud Run the database is
// reached through the Cloud SQL unix socket.
func DSN(cfg *config.Config) string {
	db := cfg.Database
	if cfg.InstanceConnectionName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.InstanceConnectionName, db.User, db.Pass, db.Name)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		db.Host, db.User, db.Pass, db.Name, db.Port, db.SSLMode)
}

// Connect opens the postgres connection and stores it in DB.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	if cfg.InstanceConnectionName != "" {
		zap.S().Infof("Connecting to Cloud SQL via socket: %s", cfg.InstanceConnectionName)
	} else {
		zap.S().Infof("Connecting to PostgreSQL at %s:%d", cfg.Database.Host, cfg.Database.Port)
	}

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.Database.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(DSN(cfg)), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	DB = db
	zap.S().Info("Database connected successfully")
	return db, nil
}

// Migrate creates or updates every table the engine uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.Tables...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
