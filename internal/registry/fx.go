package registry

import (
	"context"

	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// Module provides the target registry and the member-count collector for fx
// dependency injection
var Module = fx.Module("registry",
	fx.Provide(
		NewRegistry,
		func(r *Registry) domain.TargetRegistry { return r },
		NewCollector,
	),
	fx.Invoke(registerCollector),
)

// registerCollector ties the collector to the application lifecycle
func registerCollector(lc fx.Lifecycle, c *Collector) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c.Stop()
			return nil
		},
	})
}
