package realtime

import (
	"context"
	"log"
	"time"

	"textile-sync/internal/gateway"

	"github.com/segmentio/kafka-go"
)

// Change operations on the remote change feed.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// ChangeEvent is one row change notification from the remote data service.
// Row carries the raw post-change row for inserts and updates.
type ChangeEvent struct {
	EventID   string      `json:"event_id"`
	Kind      string      `json:"kind"`
	Op        string      `json:"op"`
	RecordID  string      `json:"record_id"`
	Row       gateway.Row `json:"row,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Consumer reads change notifications from the feed topic.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a change-feed consumer.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &Consumer{reader: reader}
}

// MessageHandler handles one feed message.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming consumes messages until the context is cancelled. Handler
// errors skip the message; the cache will converge on the next full fetch.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	log.Printf("Starting change-feed consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Change-feed consumer context cancelled, stopping...")
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				log.Printf("Error fetching change message: %v", err)
				time.Sleep(time.Second)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				log.Printf("Error applying change message: %v", err)
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Printf("Error committing change message: %v", err)
			}
		}
	}
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
