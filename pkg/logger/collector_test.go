package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if batch, ok := payload.([]AggregatedLogEntry); ok {
		p.batches = append(p.batches, batch)
	}
	return nil
}

func (p *capturePublisher) snapshot() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]AggregatedLogEntry, len(p.batches))
	copy(out, p.batches)
	return out
}

func TestCollectorThresholdFlush(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "logs.errors",
		Publisher:      pub,
	})
	defer c.Close()

	c.AddLog("error", "store write failed", map[string]interface{}{"symbol": "VNM"}, "repo.go:10")
	if got := pub.snapshot(); len(got) != 0 {
		t.Fatalf("flushed below threshold: %v", got)
	}

	c.AddLog("error", "publish failed", nil, "publisher.go:44")
	batches := pub.snapshot()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("threshold flush batches = %+v", batches)
	}
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "logs.errors",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		c.AddLog("error", "store write failed", map[string]interface{}{"attempt": i}, "repo.go:10")
	}
	c.Close() // final flush

	batches := pub.snapshot()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("close flush batches = %+v", batches)
	}
	e := batches[0][0]
	if e.Count != 3 {
		t.Fatalf("duplicate count = %d, want 3", e.Count)
	}
	if e.Fields["attempt"] != 0 {
		t.Fatalf("fields should keep first occurrence, got %v", e.Fields)
	}
}
