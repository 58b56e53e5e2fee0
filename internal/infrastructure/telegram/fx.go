package telegram

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// ClientFactory builds one MessagingClient per pooled account. The pool owns
// the returned client's lifecycle.
type ClientFactory func(phone string) (domain.MessagingClient, error)

// Module provides the MTProto client factory for fx dependency injection
var Module = fx.Module("telegram",
	fx.Provide(NewClientFactory),
)

// NewClientFactory creates a ClientFactory bound to the shared API credentials
func NewClientFactory(cfg *config.TelegramConfig, logger zerolog.Logger) ClientFactory {
	return func(phone string) (domain.MessagingClient, error) {
		return NewMTProtoClient(ClientConfig{
			APIID:       cfg.APIID,
			APIHash:     cfg.APIHash,
			PhoneNumber: phone,
			SessionDir:  cfg.SessionDir,
			Logger:      logger,
		})
	}
}
