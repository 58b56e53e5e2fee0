package pool

import (
	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// Module provides the account pool for fx dependency injection
var Module = fx.Module("pool",
	fx.Provide(
		NewManager,
		func(m *Manager) domain.AccountPool { return m },
	),
)
