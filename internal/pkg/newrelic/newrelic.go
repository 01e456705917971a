package newrelic

import (
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
)

// InitNewRelic returns the APM application, or nil when APM is disabled or
// cannot start. Every helper in this package accepts a nil application.
func InitNewRelic(configs *models.Config) *newrelic.Application {
	if !configs.NewRelic.Enabled || configs.NewRelic.LicenseKey == "" {
		logger.Info("New Relic is disabled or license key not provided")
		return nil
	}

	appName := configs.NewRelic.AppName
	if appName == "" {
		appName = configs.App.Name
	}
	logger.Info("Initializing New Relic",
		logger.String("app_name", appName),
		logger.Bool("forward_logs", configs.NewRelic.ForwardLogs))

	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(appName),
		newrelic.ConfigLicense(configs.NewRelic.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(configs.NewRelic.ForwardLogs),
		newrelic.ConfigAppLogDecoratingEnabled(true),
		func(cfg *newrelic.Config) {
			cfg.Labels = map[string]string{"environment": configs.App.Environment}
		},
	)
	if err != nil {
		logger.Warn("New Relic unavailable, continuing without APM", logger.Err(err))
		return nil
	}
	return nrApp
}

// Shutdown flushes pending APM data, waiting at most timeout
func Shutdown(app *newrelic.Application, timeout time.Duration) {
	if app == nil {
		return
	}
	app.Shutdown(timeout)
}
