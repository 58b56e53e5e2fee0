package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/metrics"
)

// AuditProducer publishes invitation-attempt events to Kafka using an
// asynchronous producer. The database audit log stays the durable record;
// the stream is a best-effort mirror for external consumers.
type AuditProducer struct {
	producer  sarama.AsyncProducer
	topic     string
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// ProducerConfig holds configuration for the audit producer
type ProducerConfig struct {
	Brokers []string
	Topic   string
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// attemptEvent is the wire format of one audit event
type attemptEvent struct {
	UserID       int64     `json:"user_id"`
	TargetID     int64     `json:"target_id"`
	TargetName   string    `json:"target_name"`
	AccountPhone string    `json:"account_phone"`
	Outcome      string    `json:"outcome"`
	Detail       string    `json:"detail,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewAuditProducer creates a Kafka-backed audit producer
func NewAuditProducer(cfg ProducerConfig) (*AuditProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers specified")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	p := &AuditProducer{
		producer: producer,
		topic:    cfg.Topic,
		logger:   cfg.Logger.With().Str("component", "audit_producer").Logger(),
		metrics:  cfg.Metrics,
	}

	p.wg.Add(1)
	go p.consumeErrors()

	return p, nil
}

// consumeErrors drains the async producer error channel until close
func (p *AuditProducer) consumeErrors() {
	defer p.wg.Done()
	for err := range p.producer.Errors() {
		if p.metrics != nil {
			p.metrics.AuditPublishErrors.Inc()
		}
		p.logger.Warn().Err(err.Err).Msg("Failed to publish audit event")
	}
}

// Publish enqueues one attempt event, keyed by user id for per-user ordering
func (p *AuditProducer) Publish(ctx context.Context, attempt *domain.InvitationAttempt) error {
	event := attemptEvent{
		UserID:       attempt.UserID,
		TargetID:     attempt.TargetID,
		TargetName:   attempt.TargetName,
		AccountPhone: attempt.AccountPhone,
		Outcome:      string(attempt.Outcome),
		Detail:       attempt.Detail,
		OccurredAt:   attempt.CreatedAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(attempt.UserID, 10)),
		Value: sarama.ByteEncoder(payload),
	}

	select {
	case p.producer.Input() <- msg:
		if p.metrics != nil {
			p.metrics.AuditPublished.Inc()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the producer down, flushing pending messages
func (p *AuditProducer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.producer.Close()
		p.wg.Wait()
	})
	return p.closeErr
}

// NopPublisher discards audit events. Used when no brokers are configured.
type NopPublisher struct{}

// Publish discards the event
func (NopPublisher) Publish(ctx context.Context, attempt *domain.InvitationAttempt) error {
	return nil
}

// Close is a no-op
func (NopPublisher) Close() error { return nil }

var (
	_ domain.AuditPublisher = (*AuditProducer)(nil)
	_ domain.AuditPublisher = NopPublisher{}
)
