package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService is the producer-side view of the queue. Handlers and
// collectors publish through it without seeing worker machinery.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Job consumes messages of a single type.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type this job consumes.
	Type() string

	// Handle processes one payload. A returned error schedules a retry.
	Handle(ctx context.Context, payload interface{}) error
}

// QueueConfig tunes the consumer side.
type QueueConfig struct {
	Workers    int           // concurrent consumers, minimum 1
	RetryLimit int           // attempts before a message is parked in the DLQ
	RetryDelay time.Duration // delay before a failed message runs again
}

// Message is the wire envelope for queued payloads.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"timestamp"`
}

// ParsePayload recovers a typed payload from whatever shape it arrived
// in: the original value on the in-process path, raw JSON off the wire,
// or the generic map a JSON decode produced.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		return decodePayload[T]([]byte(p))
	case []byte:
		return decodePayload[T](p)
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload %T: %w", payload, err)
		}
		return decodePayload[T](raw)
	}
}

func decodePayload[T any](raw []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
