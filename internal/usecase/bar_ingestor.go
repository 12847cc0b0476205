package usecase

import (
	"context"

	mid "VNFlow/internal/middleware"
	pkgkafka "VNFlow/pkg/kafka"
)

// BarIngestor owns the ingest side: the Kafka consumer delivering raw
// end-of-day bars and the pipeline that validates and routes them.
type BarIngestor struct {
	consumer *pkgkafka.Consumer
	proc     *BarProcessor
	pipe     *mid.IngestPipeline
}

// NewBarIngestor creates a new BarIngestor instance.
func NewBarIngestor(consumer *pkgkafka.Consumer, proc *BarProcessor, pipe *mid.IngestPipeline) *BarIngestor {
	return &BarIngestor{consumer: consumer, proc: proc, pipe: pipe}
}

// Start launches the pipeline flusher and the consumer workers.
func (c *BarIngestor) Start(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	return c.consumer.Start()
}

// Processor returns the underlying BarProcessor for lifecycle management.
func (c *BarIngestor) Processor() *BarProcessor { return c.proc }

// Shutdown stops the pipeline and the consumer.
func (c *BarIngestor) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.consumer.Stop(ctx)
}
