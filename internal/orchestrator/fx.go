package orchestrator

import (
	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// Module provides the invitation orchestrator for fx dependency injection
var Module = fx.Module("orchestrator",
	fx.Provide(
		NewService,
		func(s *Service) domain.Orchestrator { return s },
	),
)
