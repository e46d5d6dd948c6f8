// Package events forwards live signals to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"chasebtc/internal/domain"
	"chasebtc/internal/service"
)

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Compile-time interface check.
var _ service.Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes each prediction as a JSON message keyed by the
// prediction's bar date, so all signals for one bar land on one partition.
type KafkaPublisher struct {
	writer messageWriter
	log    *slog.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "kafka", "topic", topic)
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warn("signal delivery failed", "messages", len(msgs), "error", err)
			}
		},
	}
	return &KafkaPublisher{writer: w, log: log}
}

// Publish enqueues p. Delivery errors are logged and never reach the caller.
func (k *KafkaPublisher) Publish(p domain.Prediction) {
	msg, err := encode(p)
	if err != nil {
		k.log.Error("encoding signal", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.log.Warn("publishing signal", "error", err)
	}
}

// Close flushes pending messages.
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

func encode(p domain.Prediction) (kafka.Message, error) {
	value, err := json.Marshal(service.PredictionWire(p))
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling prediction: %w", err)
	}
	return kafka.Message{
		Key:   []byte(p.BarTimestamp.UTC().Format(time.DateOnly)),
		Value: value,
		Time:  p.Timestamp,
		Headers: []kafka.Header{
			{Key: "signal", Value: []byte(p.Signal)},
			{Key: "model_version", Value: []byte(p.ModelVersion)},
		},
	}, nil
}
