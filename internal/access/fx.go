package access

import (
	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// Module provides access control for fx dependency injection
var Module = fx.Module("access",
	fx.Provide(
		NewService,
		func(s *Service) domain.AccessControl { return s },
	),
)
