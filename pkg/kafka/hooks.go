package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes the lifecycle of every handled record. A hook
// may swap the context, message or payload in BeforeHandle; a non-nil
// error there skips the handler and fails the record outright.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
}

// NoopHook is the default hook.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, msg, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// LagHook reports how far behind the feed each record arrives, measured
// from the broker timestamp. Records without a timestamp are skipped.
type LagHook struct {
	Observe func(topic string, lag time.Duration)
}

func (h LagHook) BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Observe != nil && !msg.Time.IsZero() {
		if lag := time.Since(msg.Time); lag > 0 {
			h.Observe(topic, lag)
		}
	}
	return ctx, msg, data, nil
}

func (LagHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (LagHook) OnError(context.Context, string, kafka.Message, []byte, error) {}
