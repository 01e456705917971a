package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/piresc/schoolbus/internal/pkg/models"
)

func InitConfig(configPath string) *models.Config {
	local := GetEnv("APP_ENV", "local")
	if local == "local" {
		// Load config from file
		err := godotenv.Load(configPath)
		if err != nil {
			log.Println("error loading config from file", err)
		}
	}
	return loadConfigFromEnv()
}

func loadConfigFromEnv() *models.Config {
	configs := &models.Config{}

	// App config
	configs.App.Name = GetEnv("APP_NAME", "schoolbus-tracking")
	configs.App.Environment = GetEnv("APP_ENV", "")
	configs.App.Debug = GetEnvAsBool("APP_DEBUG", false)
	configs.App.Version = GetEnv("APP_VERSION", "")

	// Server config
	configs.Server.Host = GetEnv("SERVER_HOST", "")
	configs.Server.Port = GetEnvAsInt("SERVER_PORT", 9990)
	configs.Server.ReadTimeout = GetEnvAsInt("SERVER_READ_TIMEOUT", 30)
	configs.Server.WriteTimeout = GetEnvAsInt("SERVER_WRITE_TIMEOUT", 30)
	configs.Server.ShutdownTimeout = GetEnvAsInt("SERVER_SHUTDOWN_TIMEOUT", 10)
	configs.Server.APIKey = GetEnv("SERVER_API_KEY", "")
	configs.Server.RateLimit = GetEnvAsInt("SERVER_RATE_LIMIT", 120)

	// Database config
	configs.Database.Driver = GetEnv("DB_DRIVER", "pgx")
	configs.Database.Host = GetEnv("DB_HOST", "")
	configs.Database.Port = GetEnvAsInt("DB_PORT", 5432)
	configs.Database.Username = GetEnv("DB_USERNAME", "")
	configs.Database.Password = GetEnv("DB_PASSWORD", "")
	configs.Database.Database = GetEnv("DB_DATABASE", "")
	configs.Database.SSLMode = GetEnv("DB_SSL_MODE", "disable")
	configs.Database.MaxConns = GetEnvAsInt("DB_MAX_CONNS", 10)
	configs.Database.IdleConns = GetEnvAsInt("DB_IDLE_CONNS", 5)

	// Redis config
	configs.Redis.Host = GetEnv("REDIS_HOST", "")
	configs.Redis.Port = GetEnvAsInt("REDIS_PORT", 6379)
	configs.Redis.Password = GetEnv("REDIS_PASSWORD", "")
	configs.Redis.DB = GetEnvAsInt("REDIS_DB", 0)
	configs.Redis.PoolSize = GetEnvAsInt("REDIS_POOL_SIZE", 10)

	// NATS config
	configs.NATS.URL = GetEnv("NATS_URL", "nats://localhost:4222")

	// JWT config
	configs.JWT.Secret = GetEnv("JWT_SECRET", "")
	configs.JWT.Expiration = GetEnvAsInt("JWT_EXPIRATION", 60)
	configs.JWT.Issuer = GetEnv("JWT_ISSUER", "schoolbus")

	// NewRelic config
	configs.NewRelic.LicenseKey = GetEnv("NEW_RELIC_LICENSE_KEY", "")
	configs.NewRelic.AppName = GetEnv("NEW_RELIC_APP_NAME", "")
	configs.NewRelic.Enabled = GetEnvAsBool("NEW_RELIC_ENABLED", false)
	configs.NewRelic.ForwardLogs = GetEnvAsBool("NEW_RELIC_FORWARD_LOGS", false)

	// Logger config
	configs.Logger.Level = GetEnv("LOG_LEVEL", "info")
	configs.Logger.FilePath = GetEnv("LOG_FILE_PATH", "")

	// Metrics config
	configs.Metrics.Enabled = GetEnvAsBool("METRICS_ENABLED", true)
	configs.Metrics.Namespace = GetEnv("METRICS_NAMESPACE", "schoolbus")

	// Tracking config
	def := models.DefaultTrackingConfig()
	configs.Tracking.FarThresholdMeters = GetEnvAsFloat("TRACKING_FAR_THRESHOLD_M", def.FarThresholdMeters)
	configs.Tracking.NearThresholdMeters = GetEnvAsFloat("TRACKING_NEAR_THRESHOLD_M", def.NearThresholdMeters)
	configs.Tracking.DepartureMargin = GetEnvAsFloat("TRACKING_DEPARTURE_MARGIN", def.DepartureMargin)
	configs.Tracking.DwellPoints = GetEnvAsInt("TRACKING_DWELL_POINTS", def.DwellPoints)
	configs.Tracking.SpeedSamples = GetEnvAsInt("TRACKING_SPEED_SAMPLES", def.SpeedSamples)
	configs.Tracking.MinSpeedMps = GetEnvAsFloat("TRACKING_MIN_SPEED_MPS", def.MinSpeedMps)
	configs.Tracking.MaxAccuracyMeters = GetEnvAsFloat("TRACKING_MAX_ACCURACY_M", def.MaxAccuracyMeters)
	configs.Tracking.MinInterval = GetEnvAsDuration("TRACKING_MIN_INTERVAL", def.MinInterval)
	configs.Tracking.SubscriberQueue = GetEnvAsInt("TRACKING_SUBSCRIBER_QUEUE", def.SubscriberQueue)
	configs.Tracking.IdleTimeout = GetEnvAsDuration("TRACKING_SUBSCRIBER_IDLE_TIMEOUT", def.IdleTimeout)
	configs.Tracking.RequestTokenTTL = GetEnvAsDuration("TRACKING_REQUEST_TOKEN_TTL", def.RequestTokenTTL)
	configs.Tracking.SessionRetention = GetEnvAsDuration("TRACKING_SESSION_RETENTION", def.SessionRetention)
	configs.Tracking.RouteCacheTTL = GetEnvAsDuration("TRACKING_ROUTE_CACHE_TTL", def.RouteCacheTTL)

	return configs
}

// Helper functions to get environment variables with different types
func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}

func GetEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}

// GetEnvAsDuration accepts Go duration strings ("15s", "10m")
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}
