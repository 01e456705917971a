package models

import "time"

// Config represents application configuration
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	JWT      JWTConfig
	Logger   LoggerConfig
	NewRelic NewRelicConfig
	Metrics  MetricsConfig
	Tracking TrackingConfig
}

// AppConfig contains application-specific configuration
type AppConfig struct {
	Name        string
	Environment string
	Debug       bool
	Version     string
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     int
	WriteTimeout    int
	ShutdownTimeout int
	APIKey          string
	RateLimit       int // requests per minute per caller on /api/v1, 0 disables
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	Username  string
	Password  string
	Database  string
	SSLMode   string
	MaxConns  int
	IdleConns int
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// NATSConfig contains NATS connection configuration
type NATSConfig struct {
	URL string
}

// JWTConfig contains JWT authentication configuration
type JWTConfig struct {
	Secret     string
	Expiration int // in minutes
	Issuer     string
}

// LoggerConfig contains logging configuration
type LoggerConfig struct {
	Level    string
	FilePath string
}

// NewRelicConfig contains New Relic APM configuration
type NewRelicConfig struct {
	LicenseKey  string
	AppName     string
	Enabled     bool
	ForwardLogs bool
}

// MetricsConfig contains Prometheus exposition configuration
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// TrackingConfig contains the tunables of the tracking core
type TrackingConfig struct {
	FarThresholdMeters  float64
	NearThresholdMeters float64
	DepartureMargin     float64
	DwellPoints         int
	SpeedSamples        int
	MinSpeedMps         float64
	MaxAccuracyMeters   float64
	MinInterval         time.Duration
	SubscriberQueue     int
	IdleTimeout         time.Duration
	RequestTokenTTL     time.Duration
	SessionRetention    time.Duration
	RouteCacheTTL       time.Duration
}

// DefaultTrackingConfig returns the tracking tunables used when nothing is configured
func DefaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		FarThresholdMeters:  500,
		NearThresholdMeters: 200,
		DepartureMargin:     1.2,
		DwellPoints:         2,
		SpeedSamples:        5,
		MinSpeedMps:         1.0,
		MaxAccuracyMeters:   100,
		MinInterval:         15 * time.Second,
		SubscriberQueue:     64,
		IdleTimeout:         90 * time.Second,
		RequestTokenTTL:     10 * time.Minute,
		SessionRetention:    30 * time.Minute,
		RouteCacheTTL:       5 * time.Minute,
	}
}
