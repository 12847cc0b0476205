package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"VNFlow/internal/domain/models"
	domrepo "VNFlow/internal/domain/repository"
	"VNFlow/pkg/util"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, b *models.PriceBar) error
}

// IngestPipeline sits between the bar feed and the backend. It validates
// incoming bars, drops duplicate deliveries, and buffers when the backend
// is unavailable so a short outage does not lose the day's close.
//
// Re-sends of an already accepted (symbol, date) pair are dropped inside
// the dedupe window; a later re-send passes through so vendor corrections
// still land. Bars older than the last accepted date are treated as
// duplicates; backfills go straight to storage, not through the pipeline.
type IngestPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	window  time.Duration
	bufSize int
	backoff time.Duration
	bufCh   chan *models.PriceBar
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	last    map[string]barSeen
	// optional normalization hook applied before validation
	transform func(*models.PriceBar) *models.PriceBar
}

type barSeen struct {
	date time.Time
	at   time.Time
}

type PipelineOption func(*IngestPipeline)

// WithDedupeWindow sets how long repeated deliveries of the same bar are
// suppressed.
func WithDedupeWindow(d time.Duration) PipelineOption {
	return func(p *IngestPipeline) {
		if d > 0 {
			p.window = d
		}
	}
}

// WithBufferSize sets the temporary buffer size when the backend is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetryBackoff sets the initial delay before a buffered bar is retried.
// The delay doubles per consecutive failure, capped at 2s.
func WithRetryBackoff(d time.Duration) PipelineOption {
	return func(p *IngestPipeline) {
		if d > 0 {
			p.backoff = d
		}
	}
}

// WithTransform sets a normalization hook applied to every bar before
// validation.
func WithTransform(fn func(*models.PriceBar) *models.PriceBar) PipelineOption {
	return func(p *IngestPipeline) { p.transform = fn }
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		proc:    proc,
		metrics: metrics,
		window:  30 * time.Second,
		bufSize: 1000,
		backoff: 50 * time.Millisecond,
		bufCh:   make(chan *models.PriceBar, 1000),
		stopCh:  make(chan struct{}),
		last:    make(map[string]barSeen),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.PriceBar, p.bufSize)
	}
	return p
}

// Start launches background flushing of buffered bars.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := p.backoff
		for {
			select {
			case <-p.stopCh:
				return
			case b := <-p.bufCh:
				if b == nil {
					continue
				}
				if err := p.proc.Process(ctx, b); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- b:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = p.backoff
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and dedupes a bar, then forwards it downstream,
// buffering on backend errors.
func (p *IngestPipeline) Process(ctx context.Context, b *models.PriceBar) error {
	start := time.Now()
	if p.transform != nil {
		b = p.transform(b)
	}
	if err := validateBar(b); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.accept(b, start) {
		p.metrics.RecordError("pipeline_duplicate")
		return nil
	}

	if err := p.proc.Process(ctx, b); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- b:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateBar(b *models.PriceBar) error {
	if b == nil {
		return fmt.Errorf("bar nil")
	}
	if b.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if b.Date.IsZero() {
		return fmt.Errorf("date missing")
	}
	if !util.TradingDay(b.Date) {
		return fmt.Errorf("dated on a non-session day")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if b.High < b.Low {
		return fmt.Errorf("high below low")
	}
	if b.Volume < 0 || b.ForeignBuy < 0 || b.ForeignSell < 0 {
		return fmt.Errorf("negative volume")
	}
	return nil
}

func (p *IngestPipeline) accept(b *models.PriceBar, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen, ok := p.last[b.Symbol]
	switch {
	case !ok, b.Date.After(seen.date):
		p.last[b.Symbol] = barSeen{date: b.Date, at: now}
		return true
	case b.Date.Equal(seen.date) && now.Sub(seen.at) >= p.window:
		// correction re-send after the quiet period
		p.last[b.Symbol] = barSeen{date: b.Date, at: now}
		return true
	default:
		return false
	}
}
