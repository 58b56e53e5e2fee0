package http

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the operational HTTP server for fx dependency injection
var Module = fx.Module("http",
	fx.Provide(NewServer),
	fx.Invoke(registerServer),
)

func registerServer(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}
