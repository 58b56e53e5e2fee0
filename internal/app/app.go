// Package app contains application bootstrap
package app

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/access"
	"github.com/MarkPereverzov/Memberly/internal/cooldown"
	httpDelivery "github.com/MarkPereverzov/Memberly/internal/delivery/http"
	botDelivery "github.com/MarkPereverzov/Memberly/internal/delivery/telegram"
	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/database"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/kafka"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/logger"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/metrics"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/telegram"
	"github.com/MarkPereverzov/Memberly/internal/orchestrator"
	"github.com/MarkPereverzov/Memberly/internal/pool"
	"github.com/MarkPereverzov/Memberly/internal/registry"
	repository "github.com/MarkPereverzov/Memberly/internal/repository/postgres"
)

// CreateApp creates fx application with all modules
func CreateApp() fx.Option {
	return fx.Options(
		// Configuration
		fx.Provide(config.Out),

		// Infrastructure
		logger.Module,
		metrics.Module,
		database.Module,
		repository.Module,
		kafka.Module,
		telegram.Module,

		// Core
		pool.Module,
		cooldown.Module,
		access.Module,
		registry.Module,
		orchestrator.Module,

		// Delivery
		botDelivery.Module,
		httpDelivery.Module,

		fx.Invoke(registerCore),
	)
}

// registerCore brings the pool and the registry up before the bot starts
// taking commands, and tears the pool down on shutdown.
func registerCore(
	lc fx.Lifecycle,
	p domain.AccountPool,
	r domain.TargetRegistry,
	cfg *config.ServiceConfig,
	log zerolog.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Initialize(ctx); err != nil {
				return err
			}
			return r.Initialize(ctx)
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			p.Shutdown(shutdownCtx)
			log.Info().Msg("service stopped")
			return nil
		},
	})
}
