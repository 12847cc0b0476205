package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	models "VNFlow/internal/domain/models"
	domsvc "VNFlow/internal/domain/service"
	icache "VNFlow/internal/service/cache"
	"VNFlow/internal/service/metrics"
	"VNFlow/internal/service/ratelimit"
	"VNFlow/internal/usecase"
	pkgcache "VNFlow/pkg/cache"
	xhttp "VNFlow/pkg/http"
	applogger "VNFlow/pkg/logger"
	"VNFlow/pkg/queue"

	"github.com/labstack/echo/v4"
)

// AnalysisHandler serves the signal-analysis endpoints over Echo.
type AnalysisHandler struct {
	analyzer *usecase.AnalyzerUseCase
	overview *usecase.OverviewUseCase
	q        queue.QueueService
	cache    icache.BytesCache
	rl       *ratelimit.Limiter
	health   func(ctx context.Context) error
	l        *applogger.Logger

	rlBurst     float64
	rlRPS       float64
	analyzeTTL  time.Duration
	overviewTTL time.Duration
}

func NewAnalysisHandler(analyzer *usecase.AnalyzerUseCase, overview *usecase.OverviewUseCase, q queue.QueueService) *AnalysisHandler {
	metrics.Register()
	return &AnalysisHandler{
		analyzer:    analyzer,
		overview:    overview,
		q:           q,
		rl:          ratelimit.New(),
		rlBurst:     10,
		rlRPS:       5,
		analyzeTTL:  30 * time.Second,
		overviewTTL: 60 * time.Second,
	}
}

func (h *AnalysisHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetRateLimit tunes the per-client budget for /analyze. The overview and
// refresh endpoints keep their fixed stricter budgets.
func (h *AnalysisHandler) SetRateLimit(rps float64, burst int) {
	if rps > 0 {
		h.rlRPS = rps
	}
	if burst > 0 {
		h.rlBurst = float64(burst)
	}
}

// SetCacheTTLs overrides the per-endpoint response cache lifetimes.
func (h *AnalysisHandler) SetCacheTTLs(analyze, overview time.Duration) {
	if analyze > 0 {
		h.analyzeTTL = analyze
	}
	if overview > 0 {
		h.overviewTTL = overview
	}
}

// SetLogger injects a structured logger.
func (h *AnalysisHandler) SetLogger(l *applogger.Logger) { h.l = l }

// SetHealthCheck wires an infrastructure probe for /healthz.
func (h *AnalysisHandler) SetHealthCheck(fn func(ctx context.Context) error) { h.health = fn }

func (h *AnalysisHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	g := e.Group("/api")
	g.GET("/analyze", h.Analyze)
	g.GET("/overview", h.Overview)
	g.POST("/refresh", h.Refresh)
}

func (h *AnalysisHandler) Analyze(c echo.Context) error {
	start := time.Now()
	endpoint := "analyze"
	defer func() { metrics.AnalysisLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		if h.l != nil {
			h.l.Warn("api.analyze bad_request")
		}
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	if !h.rl.Allow(c.RealIP()+":analyze", h.rlBurst, h.rlRPS) {
		if h.l != nil {
			h.l.Warn("api.analyze rate_limited", applogger.String("remote", c.RealIP()))
		}
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	cacheKey := pkgcache.GenerateKeyWithParams("analyze", symbol, req.Days)
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(c.Request().Context(), cacheKey); err != nil {
			if h.l != nil {
				h.l.Warn("api.analyze cache_get_error", applogger.Error(err))
			}
		} else if ok {
			if h.l != nil {
				h.l.Debug("api.analyze cache_hit", applogger.String("key", cacheKey))
			}
			return xhttp.DataResponse(c, http.StatusOK, json.RawMessage(b))
		}
	}

	res, err := h.analyzer.Analyze(c.Request().Context(), usecase.AnalyzeParams{Symbol: symbol, DaysBack: req.Days})
	if err != nil {
		metrics.AnalysisErrors.WithLabelValues(endpoint).Inc()
		if h.l != nil {
			h.l.Error("api.analyze error", applogger.String("symbol", symbol), applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, analysisError(err))
	}
	metrics.SignalClassTotal.WithLabelValues(string(res.Composite.Class)).Inc()
	metrics.AdjustedScore.WithLabelValues(symbol).Set(res.Context.AdjustedScore)

	if h.cache != nil {
		if b, merr := json.Marshal(res); merr == nil {
			if serr := h.cache.SetBytes(c.Request().Context(), cacheKey, b, h.analyzeTTL); serr != nil && h.l != nil {
				h.l.Warn("api.analyze cache_set_error", applogger.Error(serr))
			}
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) Overview(c echo.Context) error {
	start := time.Now()
	endpoint := "overview"
	defer func() { metrics.AnalysisLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.OverviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		if h.l != nil {
			h.l.Warn("api.overview bad_request")
		}
		return xhttp.BadRequestResponse(c, verr)
	}

	if !h.rl.Allow(c.RealIP()+":overview", 3, 1) {
		if h.l != nil {
			h.l.Warn("api.overview rate_limited", applogger.String("remote", c.RealIP()))
		}
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	symbols := splitSymbols(req.Symbols)
	// The symbol list is caller-controlled and unbounded, so it enters the
	// key as a digest.
	cacheKey := pkgcache.GenerateKeyWithParams("overview", req.Top, req.Days, pkgcache.HashKey(strings.Join(symbols, ",")))
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(c.Request().Context(), cacheKey); err != nil {
			if h.l != nil {
				h.l.Warn("api.overview cache_get_error", applogger.Error(err))
			}
		} else if ok {
			if h.l != nil {
				h.l.Debug("api.overview cache_hit", applogger.String("key", cacheKey))
			}
			return xhttp.DataResponse(c, http.StatusOK, json.RawMessage(b))
		}
	}

	ov, err := h.overview.BuildOverview(c.Request().Context(), usecase.OverviewParams{
		Symbols:  symbols,
		DaysBack: req.Days,
		Top:      req.Top,
	})
	if err != nil {
		metrics.AnalysisErrors.WithLabelValues(endpoint).Inc()
		if h.l != nil {
			h.l.Error("api.overview error", applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, xhttp.InternalError("overview failed").WithError(err))
	}
	metrics.OverviewRuns.Inc()

	if h.cache != nil {
		if b, merr := json.Marshal(ov); merr == nil {
			if serr := h.cache.SetBytes(c.Request().Context(), cacheKey, b, h.overviewTTL); serr != nil && h.l != nil {
				h.l.Warn("api.overview cache_set_error", applogger.Error(serr))
			}
		}
	}
	return xhttp.SuccessResponse(c, ov)
}

// Refresh queues a re-analysis; the snapshot lands asynchronously via the
// queue worker so the endpoint answers 202 immediately.
func (h *AnalysisHandler) Refresh(c echo.Context) error {
	start := time.Now()
	endpoint := "refresh"
	defer func() { metrics.AnalysisLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.RefreshRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		if h.l != nil {
			h.l.Warn("api.refresh bad_request")
		}
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	if !h.rl.Allow(c.RealIP()+":refresh", 2, 1) {
		if h.l != nil {
			h.l.Warn("api.refresh rate_limited", applogger.String("remote", c.RealIP()))
		}
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	if h.q == nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("refresh queue unavailable"))
	}

	payload := map[string]interface{}{"symbol": symbol, "days_back": req.Days}
	if err := h.q.PublishMessage(c.Request().Context(), usecase.RefreshJobType, payload); err != nil {
		metrics.AnalysisErrors.WithLabelValues(endpoint).Inc()
		if h.l != nil {
			h.l.Error("api.refresh enqueue_error", applogger.String("symbol", symbol), applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, xhttp.InternalError("enqueue refresh").WithError(err))
	}
	if h.l != nil {
		h.l.Info("api.refresh queued", applogger.String("symbol", symbol), applogger.Int("days", req.Days))
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]interface{}{"symbol": symbol, "queued": true})
}

func (h *AnalysisHandler) Healthz(c echo.Context) error {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			if h.l != nil {
				h.l.Warn("api.healthz degraded", applogger.Error(err))
			}
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// analysisError maps engine failures onto transport errors. Thin histories are
// a client-addressable condition; anything else is a server fault.
func analysisError(err error) error {
	switch {
	case errors.Is(err, domsvc.ErrInsufficientData):
		return xhttp.NewAppError("ERR_INSUFFICIENT_DATA", "", err.Error(), http.StatusUnprocessableEntity).WithError(err)
	case errors.Is(err, domsvc.ErrInvalidBar):
		return xhttp.InternalErrorf("stored history is corrupt: %v", err).WithError(err)
	default:
		return xhttp.InternalError("analysis failed").WithError(err)
	}
}

func splitSymbols(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ xhttp.Handler = (*AnalysisHandler)(nil)
