package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZapLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tracking.log")

	zl, err := NewZapLogger(ZapConfig{Level: "debug", FilePath: path, Service: "tracking-test"}, nil)
	require.NoError(t, err)

	zl.Info("session started", SessionID("s1"), RouteID("r1"))
	require.NoError(t, zl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_id":"s1"`)
	assert.Contains(t, string(data), `"service":"tracking-test"`)
}

func TestNewZapLogger_InvalidLevelDefaultsToInfo(t *testing.T) {
	zl, err := NewZapLogger(ZapConfig{Level: "loud"}, nil)
	require.NoError(t, err)
	assert.False(t, zl.Core().Enabled(-1))
	assert.True(t, zl.Core().Enabled(0))
}

func TestGlobalLogger(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	nop := NewNopLogger()
	SetGlobalLogger(nop)
	assert.Same(t, nop, GetGlobalLogger())
	assert.NotPanics(t, func() {
		Info("info", String("k", "v"))
		Warn("warn")
		Error("error", Err(assert.AnError))
	})
}

func TestZapEchoMiddleware(t *testing.T) {
	e := echo.New()
	mw := ZapEchoMiddleware(NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusTeapot)
	})(c)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
