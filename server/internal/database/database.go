// Package database connects to the central Postgres archive.
package database

import (
	"fmt"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/config"
	logging "github.com/mrhunsaker/GAZE-TRACKING/server/internal/logging"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DSN builds the Postgres connection string for the archive.
func DSN(conf config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		conf.Host, conf.User, conf.Password, conf.DBName, conf.Port)
}

// Open connects to the archive and brings its schema up to date.
func Open(conf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(DSN(conf)), &gorm.Config{
		Logger: logging.NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to archive: %w", err)
	}
	log.Info("Database connection established successfully.")

	if err := migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func migrate(db *gorm.DB, log *zap.Logger) error {
	// AutoMigrate does not create composite indexes.
	if err := db.AutoMigrate(
		&models.SessionResult{},
		&models.TrialResult{},
		&models.GazePoint{},
	); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_gaze_points_trial ON gaze_points (result_id, trial_index, "time");`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_trial_results_order ON trial_results (result_id, trial_index);`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
