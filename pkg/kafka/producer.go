package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Message is one record to publish. Key picks the partition; Value is
// JSON-encoded; Type travels as the "type" header so consumers can filter
// without decoding.
type Message struct {
	Key   string
	Type  string
	Value any
}

type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig) *Producer {
	topic := cfg.Topics.CrawlEvents
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func encode(m Message) (kafka.Message, error) {
	value, err := json.Marshal(m.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling %s message: %w", m.Type, err)
	}
	return kafka.Message{
		Key:     []byte(m.Key),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(m.Type)}},
	}, nil
}

// Publish writes messages in one synchronous call.
func (p *Producer) Publish(ctx context.Context, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	batch := make([]kafka.Message, 0, len(messages))
	for _, m := range messages {
		km, err := encode(m)
		if err != nil {
			return err
		}
		batch = append(batch, km)
	}
	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		return fmt.Errorf("publishing %d messages to kafka: %w", len(batch), err)
	}
	p.logger.Debug("messages published", "count", len(batch))
	return nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
