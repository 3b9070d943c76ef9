// Package ingest mirrors accepted rider location samples onto a Kafka topic
// for downstream archiving.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joloLG/joloRide/internal/models"
)

type KafkaProducer struct {
	writer *kafka.Writer
}

// batchTimeout keeps the synchronous write on the request path short.
const batchTimeout = 5 * time.Millisecond

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
	}
	return &KafkaProducer{writer: w}
}

// PublishLocation keys by rider so one rider's samples stay ordered.
func (k *KafkaProducer) PublishLocation(ctx context.Context, s models.Sample) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(s.RiderID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
