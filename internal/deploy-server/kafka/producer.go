package kafka

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"app-deployment-service/internal/deploy-server/events"
)

// Emitter publishes task lifecycle events. A nil Emitter is valid and
// drops every event, so callers never need to branch on whether Kafka
// is configured.
type Emitter struct {
	writer *kafka.Writer
}

// NewEmitter builds a lifecycle event producer. Returns nil when no
// brokers are configured.
func NewEmitter(brokers, topic string) *Emitter {
	if brokers == "" {
		log.Println("KAFKA_BROKERS not set; lifecycle events disabled")
		return nil
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      strings.Split(brokers, ","),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
		Async:        false,
	})
	log.Printf("Lifecycle event producer configured for topic: %s", topic)
	return &Emitter{writer: writer}
}

// Emit publishes one event. Failures are logged and swallowed; events
// are observability, never part of the pipeline's outcome.
func (e *Emitter) Emit(ctx context.Context, task string, round int, status, detail string) {
	if e == nil || e.writer == nil {
		return
	}
	event := events.LifecycleEvent{
		EventID:   uuid.NewString(),
		Task:      task,
		Round:     round,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshalling lifecycle event for task %s round %d: %v", task, round, err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(event.Task),
		Value: payload,
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.writer.WriteMessages(writeCtx, msg); err != nil {
		log.Printf("Error publishing lifecycle event for task %s round %d: %v", task, round, err)
		return
	}
	log.Printf("Lifecycle event %s published for task %s round %d (%s)", event.EventID, task, round, status)
}

// Close shuts the underlying writer down.
func (e *Emitter) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
