package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joloLG/joloRide/internal/models"
)

// KafkaPublisher writes order events to a topic keyed by order id so every
// API replica can relay them into its own hub.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// publishBatchTimeout bounds how long a synchronous write waits for a batch
// to fill. Each event is written on its own.
const publishBatchTimeout = 5 * time.Millisecond

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: publishBatchTimeout,
	}
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e models.OrderEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.OrderID), Value: b})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// MessageReader is the subset of *kafka.Reader the relay uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Relay copies events from the order topic into a local hub.
type Relay struct {
	Reader MessageReader
	Hub    *Hub
	Logger *slog.Logger
}

// NewRelay joins a consumer group unique to this process so that each replica
// sees every event.
func NewRelay(brokers []string, topic, group string, hub *Hub, logger *slog.Logger) *Relay {
	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, StartOffset: kafka.LastOffset, MaxWait: time.Second})
	return &Relay{Reader: r, Hub: hub, Logger: logger}
}

func (r *Relay) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		m, err := r.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return r.Reader.Close()
			}
			r.Logger.Warn("order feed read failed", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return r.Reader.Close()
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		var e models.OrderEvent
		if err := json.Unmarshal(m.Value, &e); err != nil {
			r.Logger.Warn("invalid order event", "error", err, "offset", m.Offset)
			continue
		}
		_ = r.Hub.Publish(ctx, e)
	}
}
