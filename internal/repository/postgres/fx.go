package postgres

import "go.uber.org/fx"

// Module provides PostgreSQL repositories for fx dependency injection
var Module = fx.Module("repository-postgres",
	fx.Provide(
		NewAccountRepository,
		NewTargetRepository,
		NewAccessRepository,
		NewAttemptRepository,
	),
)
