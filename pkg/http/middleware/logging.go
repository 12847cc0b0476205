package middleware

import (
	"time"

	applogger "VNFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging emits one structured line per request. Probe and
// scrape endpoints are skipped to keep the log readable.
func RequestLogging(lg *applogger.Logger) echo.MiddlewareFunc {
	quiet := map[string]bool{"/healthz": true, "/metrics": true}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if lg == nil || quiet[c.Path()] {
				return err
			}

			req := c.Request()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("path", req.URL.Path),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency", time.Since(start)),
				applogger.String("remote", c.RealIP()),
			}
			if err != nil {
				lg.Warn("http request", append(fields, applogger.Error(err))...)
				return err
			}
			lg.Info("http request", fields...)
			return nil
		}
	}
}
