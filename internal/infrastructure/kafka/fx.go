package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/metrics"
)

// Module provides the audit stream publisher for fx dependency injection
var Module = fx.Module("kafka",
	fx.Provide(providePublisher),
)

// providePublisher builds the audit publisher; without brokers the stream is
// disabled and a nop publisher is wired instead.
func providePublisher(
	lc fx.Lifecycle,
	cfg *config.KafkaConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) (domain.AuditPublisher, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info().Msg("No Kafka brokers configured, audit stream disabled")
		return NopPublisher{}, nil
	}

	producer, err := NewAuditProducer(ProducerConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.TopicAttempts,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("Closing audit producer")
			return producer.Close()
		},
	})

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.TopicAttempts).
		Msg("Audit producer created")

	return producer, nil
}
