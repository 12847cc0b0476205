package repository

import (
	"context"

	"VNFlow/internal/domain/models"
	"VNFlow/internal/domain/repository"
	pkgkafka "VNFlow/pkg/kafka"
)

// KafkaSnapshotPublisher implements SnapshotPublisher for Kafka. Scores go
// out at full precision; consumers round for display.
type KafkaSnapshotPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSnapshotPublisher creates a Kafka snapshot publisher.
func NewKafkaSnapshotPublisher(producer *pkgkafka.Producer, topic string) repository.SnapshotPublisher {
	return &KafkaSnapshotPublisher{producer: producer, topic: topic}
}

func (p *KafkaSnapshotPublisher) PublishResult(ctx context.Context, r *models.AnalysisResult) error {
	components := make(map[string]float64, len(r.Composite.Components))
	for _, c := range r.Composite.Components {
		components[c.Name] = c.Value
	}
	return p.producer.Publish(ctx, p.topic, []byte(r.Symbol), map[string]interface{}{
		"kind":       "result",
		"symbol":     r.Symbol,
		"as_of":      r.AsOf.Format("2006-01-02"),
		"bars":       r.Bars,
		"score":      r.Composite.Score,
		"adjusted":   r.Context.AdjustedScore,
		"class":      string(r.Composite.Class),
		"strength":   string(r.Composite.Strength),
		"action":     r.Composite.Action,
		"components": components,
		"entries":    joinSignalCodes(r.Signals.Entries),
		"exits":      joinSignalCodes(r.Signals.Exits),
		"sizing": map[string]interface{}{
			"tier":     r.Signals.Sizing.Tier,
			"fraction": r.Signals.Sizing.Fraction,
		},
		"risk": map[string]interface{}{
			"volatility":   r.Risk.AnnualizedVolatility,
			"max_drawdown": r.Risk.MaxDrawdown,
		},
	})
}

func (p *KafkaSnapshotPublisher) PublishOverview(ctx context.Context, o *models.MarketOverview) error {
	counts := make(map[string]int, len(o.ClassCounts))
	for class, n := range o.ClassCounts {
		counts[string(class)] = n
	}
	picks := make([]map[string]interface{}, len(o.TopPicks))
	for i, s := range o.TopPicks {
		picks[i] = map[string]interface{}{
			"symbol": s.Symbol,
			"score":  s.Score,
			"class":  string(s.Class),
		}
	}
	return p.producer.Publish(ctx, p.topic, []byte("overview"), map[string]interface{}{
		"kind":         "overview",
		"generated_at": o.GeneratedAt.Format("2006-01-02"),
		"universe":     o.Universe,
		"analyzed":     o.Analyzed,
		"sentiment":    o.Sentiment,
		"mean_score":   o.MeanScore,
		"class_counts": counts,
		"top_picks":    picks,
		"failures":     len(o.Failures),
	})
}

func (p *KafkaSnapshotPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
