package logger

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"
)

// ZapEchoMiddleware logs one line per HTTP request
func ZapEchoMiddleware(logger *ZapLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			txn := newrelic.FromContext(c.Request().Context())
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			latency := time.Since(start)
			status := c.Response().Status
			userID := "anonymous"
			if v := c.Get("user_id"); v != nil {
				userID = fmt.Sprintf("%v", v)
			}
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)

			if txn != nil {
				txn.AddAttribute("user_id", userID)
				txn.AddAttribute("request_id", requestID)
				if err != nil {
					txn.NoticeError(err)
				}
			}

			l := logger.WithNewRelicContext(txn).With(
				zap.Int("status", status),
				zap.Duration("latency", latency),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("client_ip", c.RealIP()),
				zap.String("user_id", userID),
				zap.String("request_id", requestID),
			)
			switch {
			case status >= 500:
				l.Error("Server error", zap.Error(err))
			case status >= 400:
				l.Warn("Client error")
			default:
				l.Info("Request processed")
			}
			return nil
		}
	}
}
