package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/pkg/logger"
)

// Publisher mirrors every accepted feedback submission onto the enrichment
// topic. Consumers replaying the topic get at-least-once delivery; the
// feedback id is used as the message key so duplicates collapse on the
// consumer side.
type Publisher struct {
	writer *kafkago.Writer
	topic  string
}

// EnrichmentMessage is the payload mirrored to the queue at acceptance
// time, before any model calls have run.
type EnrichmentMessage struct {
	FeedbackID string            `json:"feedback_id"`
	Content    string            `json:"content"`
	Source     string            `json:"source"`
	CustomerID string            `json:"customer_id,omitempty"`
	Product    string            `json:"product,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

func NewPublisher(brokers []string, topic string) *Publisher {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}

	logger.Info("Kafka publisher initialized",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
	)

	return &Publisher{writer: writer, topic: topic}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// PublishEnrichment writes one message keyed by feedback id.
func (p *Publisher) PublishEnrichment(ctx context.Context, msg EnrichmentMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal enrichment message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(msg.FeedbackID),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish enrichment message: %w", err)
	}

	logger.Debug("Enrichment message published",
		zap.String("feedback_id", msg.FeedbackID),
		zap.String("topic", p.topic),
	)

	return nil
}
