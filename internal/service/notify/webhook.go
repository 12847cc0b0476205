package notify

import (
	"context"
	"fmt"
	"time"

	"VNFlow/internal/domain/models"
	domsvc "VNFlow/internal/domain/service"
	pkghttp "VNFlow/pkg/http"
	"VNFlow/pkg/logger"
)

// WebhookNotifier posts strong signals to a configured webhook. Anything
// below STRONG_BUY / STRONG_SELL is dropped here so a full universe
// refresh does not flood the channel.
type WebhookNotifier struct {
	client   *pkghttp.Client
	url      string
	attempts int
	backoff  time.Duration
	log      *logger.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, attempts int, log *logger.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &WebhookNotifier{
		client:   pkghttp.NewClient(pkghttp.WithTimeout(timeout)),
		url:      url,
		attempts: attempts,
		backoff:  500 * time.Millisecond,
		log:      log,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, res *models.AnalysisResult) error {
	if n.url == "" || res == nil {
		return nil
	}
	if res.Composite.Class != models.StrongBuy && res.Composite.Class != models.StrongSell {
		return nil
	}

	payload := map[string]interface{}{
		"event":    "signal",
		"symbol":   res.Symbol,
		"as_of":    res.AsOf.Format("2006-01-02"),
		"class":    string(res.Composite.Class),
		"strength": string(res.Composite.Strength),
		"action":   res.Composite.Action,
		"score":    res.Context.AdjustedScore,
		"entries":  signalCodes(res.Signals.Entries),
		"exits":    signalCodes(res.Signals.Exits),
		"sizing": map[string]interface{}{
			"tier":     res.Signals.Sizing.Tier,
			"fraction": res.Signals.Sizing.Fraction,
		},
	}

	var lastErr error
	backoff := n.backoff
	for i := 0; i < n.attempts; i++ {
		err := n.client.SendAndParse(ctx, &pkghttp.RequestOptions{
			Method: pkghttp.MethodPost,
			URL:    n.url,
			Body:   payload,
		}, nil)
		if err == nil {
			if i > 0 {
				n.log.Info("webhook delivered after retry",
					logger.String("symbol", res.Symbol), logger.Int("attempt", i+1))
			}
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("webhook after %d attempts: %w", n.attempts, lastErr)
}

func signalCodes(signals []models.TradeSignal) []string {
	codes := make([]string, len(signals))
	for i, s := range signals {
		codes[i] = s.Code
	}
	return codes
}

var _ domsvc.AlertNotifier = (*WebhookNotifier)(nil)
