package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestBackoffWithJitterStaysInRange(t *testing.T) {
	min := 50 * time.Millisecond
	max := 2 * time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 100; i++ {
			d := backoffWithJitter(min, max, attempt)
			if d <= 0 {
				t.Fatalf("attempt %d: non-positive backoff %v", attempt, d)
			}
			if d > max {
				t.Fatalf("attempt %d: backoff %v exceeds max %v", attempt, d, max)
			}
		}
	}
}

func TestBackoffWithJitterDefaultsBadBounds(t *testing.T) {
	if d := backoffWithJitter(0, 0, 1); d <= 0 {
		t.Fatalf("zero bounds produced %v", d)
	}
	if d := backoffWithJitter(time.Second, time.Millisecond, 1); d > time.Second {
		t.Fatalf("inverted bounds produced %v", d)
	}
}

func TestQueueForPinsPartitions(t *testing.T) {
	c := &Consumer{queues: make([]chan delivery, 4)}

	for _, topic := range []string{"vnflow.bars.raw", "vnflow.bars.normalized"} {
		for part := 0; part < 12; part++ {
			first := c.queueFor(topic, part)
			if first < 0 || first >= len(c.queues) {
				t.Fatalf("queueFor(%s, %d) = %d out of range", topic, part, first)
			}
			for i := 0; i < 5; i++ {
				if got := c.queueFor(topic, part); got != first {
					t.Fatalf("queueFor(%s, %d) not stable: %d then %d", topic, part, first, got)
				}
			}
		}
	}
}

func TestEncodeValueCoercion(t *testing.T) {
	raw, err := encodeValue([]byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("encode []byte: %v", err)
	}
	if !bytes.Equal(raw, []byte(`{"a":1}`)) {
		t.Fatalf("[]byte not passed through: %q", raw)
	}

	s, err := encodeValue("plain")
	if err != nil {
		t.Fatalf("encode string: %v", err)
	}
	if string(s) != "plain" {
		t.Fatalf("string not passed through: %q", s)
	}

	obj, err := encodeValue(map[string]int{"close": 88})
	if err != nil {
		t.Fatalf("encode map: %v", err)
	}
	var back map[string]int
	if err := json.Unmarshal(obj, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back["close"] != 88 {
		t.Fatalf("unexpected round trip value: %v", back)
	}
}

func TestParseCompression(t *testing.T) {
	if got := parseCompression("snappy"); got != kafka.Snappy {
		t.Fatalf("snappy -> %v", got)
	}
	if got := parseCompression("none"); got != 0 {
		t.Fatalf("none -> %v", got)
	}
	if got := parseCompression("bogus"); got != kafka.Gzip {
		t.Fatalf("unknown codec should fall back to gzip, got %v", got)
	}
}

func TestLagHookObservesBrokerTimestamp(t *testing.T) {
	var gotTopic string
	var gotLag time.Duration
	h := LagHook{Observe: func(topic string, lag time.Duration) {
		gotTopic = topic
		gotLag = lag
	}}

	msg := kafka.Message{Time: time.Now().Add(-3 * time.Second)}
	_, _, _, err := h.BeforeHandle(context.Background(), "vnflow.bars.raw", msg, nil)
	if err != nil {
		t.Fatalf("BeforeHandle: %v", err)
	}
	if gotTopic != "vnflow.bars.raw" {
		t.Fatalf("topic = %q", gotTopic)
	}
	if gotLag < 2*time.Second || gotLag > time.Minute {
		t.Fatalf("lag = %v, want around 3s", gotLag)
	}

	gotTopic = ""
	_, _, _, _ = h.BeforeHandle(context.Background(), "x", kafka.Message{}, nil)
	if gotTopic != "" {
		t.Fatalf("zero timestamp should not observe, got topic %q", gotTopic)
	}
}
