package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kjstillabower/weather-monitor/internal/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaSink publishes messages as JSON events for downstream consumers.
type KafkaSink struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaSink creates a sink writing to topic on brokers. Close flushes the writer.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaSink{writer: w, now: time.Now}
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

type kafkaEvent struct {
	RunID string `json:"runId,omitempty"`
	Message
	Link   string    `json:"link,omitempty"`
	SentAt time.Time `json:"sentAt"`
}

// Send publishes msg keyed by its title, with run_id, severity and sent_at headers.
func (s *KafkaSink) Send(ctx context.Context, msg Message) error {
	runID := observability.RunIDFromContext(ctx)
	sentAt := s.now().UTC()
	data, err := json.Marshal(kafkaEvent{RunID: runID, Message: msg, Link: msg.Link(), SentAt: sentAt})
	if err != nil {
		return fmt.Errorf("serialize notification: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(msg.Title),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "severity", Value: []byte(msg.Severity)},
			{Key: "sent_at", Value: []byte(sentAt.Format(time.RFC3339))},
		},
	})
}

// Close flushes pending writes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
