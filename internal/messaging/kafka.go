// Package messaging publishes article lifecycle events for downstream
// consumers (analytics, webhooks).
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types published to the article topic
const (
	EventArticleQueued    = "article.queued"
	EventArticleCompleted = "article.completed"
	EventArticleFailed    = "article.failed"
)

// ArticleEvent is the wire format for article lifecycle events
type ArticleEvent struct {
	Type      string    `json:"type"`
	UserID    uuid.UUID `json:"user_id"`
	ArticleID uuid.UUID `json:"article_id"`
	Keyword   string    `json:"keyword,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher emits article events
type Publisher interface {
	PublishArticleEvent(ctx context.Context, ev ArticleEvent) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic, keyed by user so one user's
// events stay ordered.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger.Named("messaging"),
	}
}

// PublishArticleEvent writes one event
func (p *KafkaPublisher) PublishArticleEvent(ctx context.Context, ev ArticleEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal article event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID.String()),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish article event: %w", err)
	}
	p.logger.Debug("Article event published",
		zap.String("type", ev.Type), zap.String("articleID", ev.ArticleID.String()))
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops all events; used when Kafka is disabled
type NoopPublisher struct{}

func (NoopPublisher) PublishArticleEvent(context.Context, ArticleEvent) error { return nil }
func (NoopPublisher) Close() error                                            { return nil }
