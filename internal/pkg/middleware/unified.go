package middleware

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/requestcontext"
)

// Config holds configuration for the middleware
type Config struct {
	Logger      *logger.ZapLogger
	NRApp       *newrelic.Application
	APIKey      string
	ServiceName string
}

// Middleware combines request identification, APM transactions, panic
// recovery and request logging into a single chain
type Middleware struct {
	config Config
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(config Config) *Middleware {
	if config.Logger == nil {
		config.Logger = logger.GetGlobalLogger()
	}
	return &Middleware{config: config}
}

// Handler returns the main middleware handler that combines all functionality
func (m *Middleware) Handler() echo.MiddlewareFunc {
	recovery := PanicRecoveryMiddleware(m.config.Logger)
	logging := logger.ZapEchoMiddleware(m.config.Logger)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		inner := logging(recovery(next))
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			c.Set("request_id", requestID)
			c.SetRequest(c.Request().WithContext(requestcontext.WithRequestID(c.Request().Context(), requestID)))

			if m.config.NRApp != nil {
				txn := m.config.NRApp.StartTransaction(c.Request().Method + " " + c.Path())
				defer txn.End()
				txn.SetWebRequestHTTP(c.Request())
				txn.AddAttribute("service", m.config.ServiceName)

				c.SetRequest(c.Request().WithContext(newrelic.NewContext(c.Request().Context(), txn)))
				c.Response().Writer = &txnWriter{ResponseWriter: txn.SetWebResponse(c.Response().Writer)}
			}

			return inner(c)
		}
	}
}

// APIKeyHandler guards internal endpoints with the configured X-API-Key.
// With no key configured every request is rejected.
func (m *Middleware) APIKeyHandler() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey := c.Request().Header.Get("X-API-Key")
			if apiKey == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "API key required")
			}
			if m.config.APIKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.config.APIKey)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
			}
			return next(c)
		}
	}
}

// txnWriter keeps the WebSocket upgrade working behind the APM response wrapper
type txnWriter struct {
	http.ResponseWriter
}

// Hijack implements http.Hijacker interface to support WebSocket connections
func (w *txnWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}

// Flush implements http.Flusher
func (w *txnWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
