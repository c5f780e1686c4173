package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes stage events as JSON messages keyed by run id, so all
// events of a run land on the same partition in order.
type KafkaEmitter struct {
	writer messageWriter
	topic  string
}

// ParseBrokers splits a comma-separated broker list.
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewKafkaEmitter creates an emitter writing to topic on the given brokers.
func NewKafkaEmitter(brokers []string, topic string) *KafkaEmitter {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaEmitter{writer: writer, topic: topic}
}

func (k *KafkaEmitter) Emit(ctx context.Context, evt StageEvent) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("KafkaEmitter.Emit: failed to marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "run_id", Value: []byte(evt.RunID)},
		{Key: "stage", Value: []byte(evt.Stage)},
		{Key: "status", Value: []byte(evt.Status)},
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		headers = append(headers, kafka.Header{Key: "trace_id", Value: []byte(sc.TraceID().String())})
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.RunID),
		Value:   data,
		Headers: headers,
	}); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("topic", k.topic).Msg("Failed to publish stage event")
		return fmt.Errorf("KafkaEmitter.Emit: publish to %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaEmitter) Close() error {
	return k.writer.Close()
}
