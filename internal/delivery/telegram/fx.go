package telegram

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/config"
)

// Module provides the Telegram command front end for fx dependency injection
var Module = fx.Module("bot",
	fx.Provide(
		provideBot,
		NewHandlers,
		NewRouter,
	),
	fx.Invoke(registerAndStart),
)

func provideBot(cfg *config.BotConfig, logger zerolog.Logger) (*Bot, error) {
	return NewBot(cfg.Token, logger)
}

// registerAndStart wires routes and ties the bot polling loop to the
// application lifecycle.
func registerAndStart(lc fx.Lifecycle, bot *Bot, router *Router, logger zerolog.Logger) {
	router.RegisterRoutes(bot.Raw())

	botCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				if err := bot.Start(botCtx); err != nil {
					logger.Error().Err(err).Msg("Telegram bot stopped with error")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
