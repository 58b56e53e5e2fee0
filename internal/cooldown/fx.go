package cooldown

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

const janitorInterval = time.Minute

// Module provides the cooldown engine for fx dependency injection
var Module = fx.Module("cooldown",
	fx.Provide(
		NewEngine,
		func(e *Engine) domain.CooldownEngine { return e },
	),
	fx.Invoke(registerJanitor),
)

// registerJanitor runs the periodic expired-block sweep for the lifetime of
// the application.
func registerJanitor(lc fx.Lifecycle, e *Engine) {
	janitorCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(janitorInterval)
				defer ticker.Stop()
				for {
					select {
					case <-janitorCtx.Done():
						return
					case <-ticker.C:
						e.CleanupExpired()
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
