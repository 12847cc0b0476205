package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "VNFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns handler panics into 500 responses. The stack goes to
// the log, never to the client.
func Recover(lg *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				if lg != nil {
					lg.Error("handler panic",
						applogger.String("path", c.Request().URL.Path),
						applogger.String("stack", string(debug.Stack())),
						applogger.Error(err))
				}
				// A crash answers with a real 500 so load balancers
				// and uptime checks see it, envelope convention aside.
				_ = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
				})
			}()
			return next(c)
		}
	}
}
