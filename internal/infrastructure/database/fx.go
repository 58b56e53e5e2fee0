package database

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/MarkPereverzov/Memberly/config"
)

// Module provides database components for fx dependency injection
var Module = fx.Module("database",
	fx.Provide(NewPostgresDBFx),
)

// NewPostgresDBFx creates a PostgreSQL database connection with fx lifecycle management
func NewPostgresDBFx(
	lc fx.Lifecycle,
	cfg *config.DatabaseConfig,
	logger zerolog.Logger,
) (*gorm.DB, error) {
	db, err := NewPostgresDB(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("Closing database connection")
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	logger.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("database", cfg.DBName).
		Msg("Database connected successfully")

	return db, nil
}
