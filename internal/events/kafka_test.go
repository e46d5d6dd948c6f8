package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"chasebtc/internal/domain"
	"chasebtc/pkg/chasebtc"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testPrediction() domain.Prediction {
	return domain.Prediction{
		Timestamp:    time.Date(2024, 3, 2, 12, 40, 0, 0, time.UTC),
		BarTimestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Signal:       domain.SignalBuy,
		Probability:  0.61234,
		Threshold:    0.5,
		StopLoss:     0.05,
		TakeProfit:   0.3,
		ModelVersion: "xgb-v1",
	}
}

func TestKafkaPublisherPublish(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaPublisher([]string{"localhost:9092"}, "signals", nil)
	k.writer = w

	k.Publish(testPrediction())
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "2024-03-01" {
		t.Errorf("key = %q, want %q", msg.Key, "2024-03-01")
	}
	var got chasebtc.PredictResponse
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decoding value: %v", err)
	}
	if got.Signal != "BUY" || got.Probability != 0.6123 || got.StopLoss != -0.05 {
		t.Errorf("value = %+v, want BUY 0.6123 sl -0.05", got)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "BUY" || string(msg.Headers[1].Value) != "xgb-v1" {
		t.Errorf("headers = %+v", msg.Headers)
	}

	if err := k.Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed = %v", err, w.closed)
	}
}

func TestKafkaPublisherSwallowsErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	k := NewKafkaPublisher([]string{"localhost:9092"}, "signals", nil)
	k.writer = w

	k.Publish(testPrediction())
	if len(w.msgs) != 1 {
		t.Errorf("messages = %d, want 1", len(w.msgs))
	}
}
