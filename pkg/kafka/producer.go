package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// VersionEvent represents an event about a content version
type VersionEvent struct {
	EventType     string          `json:"event_type"` // version.created, version.status_changed, version.published, branch.merged
	TenantID      string          `json:"tenant_id"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	VersionID     string          `json:"version_id"`
	BranchName    string          `json:"branch_name,omitempty"`
	VersionNumber int             `json:"version_number,omitempty"`
	Status        string          `json:"status,omitempty"`
	PreviousState string          `json:"previous_state,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	Detail        json.RawMessage `json:"detail,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PublishVersionEvent publishes a version lifecycle event to Kafka. Messages
// are keyed by entity id so one entity's events stay ordered per partition.
func (p *Producer) PublishVersionEvent(ctx context.Context, event *VersionEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishVersionEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.EntityID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
			{Key: "entity_type", Value: []byte(event.EntityType)},
		},
	}
	if traceParent := tracing.GetTraceParent(ctx); traceParent != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "traceparent", Value: []byte(traceParent)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish version event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"entity_id":   event.EntityID,
		"entity_type": event.EntityType,
		"version_id":  event.VersionID,
		"trace_id":    tracing.GetTraceID(ctx),
	}).Debug("Published version event")

	return nil
}
