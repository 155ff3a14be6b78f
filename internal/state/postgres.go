package state

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fleetdiag/log-ingest/internal/config"
	"github.com/fleetdiag/log-ingest/internal/domain"
)

// NewPostgres opens the file-state database and migrates the schema.
func NewPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(&domain.FileRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate file schema: %w", err)
	}

	log.Info().
		Str("host", cfg.PostgresHost).
		Str("database", cfg.PostgresDB).
		Msg("Connected to Postgres")

	return db, nil
}
