package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/daimoniac/scorecard/internal/errors"
)

// Load loads configuration from environment variables and scorecard.yml defaults
func Load() (*Config, error) {
	catalogPath := getEnv("SCORECARD_CONFIG", "scorecard.yml")

	var pollInterval time.Duration
	var reapplyInterval time.Duration
	var workerConcurrency int
	var retryAttempts int
	var retryBackoff time.Duration
	var queueBufferSize int

	// Catalog defaults are optional here; Validate reports a broken catalog
	if catalog, err := LoadCatalog(catalogPath); err == nil {
		if interval, err := catalog.GetPollInterval(); err == nil {
			pollInterval = interval
		}
		if interval, err := catalog.GetReapplyInterval(); err == nil {
			reapplyInterval = interval
		}
		workerConcurrency = catalog.Defaults.WorkerConcurrency
		retryAttempts = catalog.Defaults.WorkerRetryAttempts
		if catalog.Defaults.WorkerRetryBackoff != "" {
			if backoff, err := parseInterval(catalog.Defaults.WorkerRetryBackoff); err == nil {
				retryBackoff = backoff
			}
		}
		queueBufferSize = catalog.Defaults.QueueBufferSize
	}

	if pollInterval == 0 {
		pollInterval = 2 * time.Minute
	}
	if reapplyInterval == 0 {
		reapplyInterval = 24 * time.Hour
	}
	if workerConcurrency == 0 {
		workerConcurrency = 2
	}
	if retryAttempts == 0 {
		retryAttempts = 3
	}
	if retryBackoff == 0 {
		retryBackoff = 10 * time.Second
	}
	if queueBufferSize == 0 {
		queueBufferSize = 100
	}

	cfg := &Config{
		CatalogPath: catalogPath,
		Queue: QueueConfig{
			BufferSize: queueBufferSize,
		},
		Worker: WorkerConfig{
			PollInterval:     getEnvDuration("WORKER_POLL_INTERVAL", pollInterval),
			ReapplyInterval:  getEnvDuration("WORKER_REAPPLY_INTERVAL", reapplyInterval),
			RetryAttempts:    getEnvInt("WORKER_RETRY_ATTEMPTS", retryAttempts),
			RetryBackoff:     getEnvDuration("WORKER_RETRY_BACKOFF", retryBackoff),
			Concurrency:      getEnvInt("WORKER_CONCURRENCY", workerConcurrency),
			MatchConcurrency: getEnvInt("MATCH_CONCURRENCY", 8),
		},
		StateStore: StateStoreConfig{
			SQLitePath:  getEnv("SQLITE_PATH", "scorecard.db"),
			ScansToKeep: getEnvInt("SCANS_TO_KEEP", 30),
		},
		API: APIConfig{
			Enabled:   getEnvBool("API_ENABLED", true),
			Port:      getEnvInt("API_PORT", 8080),
			JWTSecret: getEnv("SCORECARD_JWT_SECRET", ""),
			ReadOnly:  getEnvBool("API_READ_ONLY", false),
		},
		Remediation: RemediationConfig{
			RoleName:      getEnv("REMEDIATION_ROLE_NAME", ""),
			RolePreflight: getEnvBool("REMEDIATION_ROLE_PREFLIGHT", true),
			AWSRegion:     getEnv("AWS_REGION", ""),
		},
		Notify: NotifyConfig{
			KafkaBrokers: getEnvList("KAFKA_BROKERS"),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "scorecard-remediations"),
		},
		Observability: ObservabilityConfig{
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			MetricsPort:     getEnvInt("METRICS_PORT", 9090),
			HealthCheckPort: getEnvInt("HEALTH_CHECK_PORT", 8081),
		},
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.CatalogPath == "" {
		return errors.NewPermanentf("catalog path is required")
	}

	if _, err := os.Stat(c.CatalogPath); os.IsNotExist(err) {
		return errors.NewPermanentf("catalog file not found: %s", c.CatalogPath)
	}

	if c.StateStore.SQLitePath == "" {
		return errors.NewPermanentf("SQLITE_PATH is required")
	}

	if c.StateStore.ScansToKeep < 1 {
		return errors.NewPermanentf("SCANS_TO_KEEP must be at least 1, got %d", c.StateStore.ScansToKeep)
	}

	if c.API.Enabled && c.API.JWTSecret == "" {
		return errors.NewPermanentf("SCORECARD_JWT_SECRET environment variable is required when the API is enabled")
	}

	if c.Remediation.RoleName == "" {
		return errors.NewPermanentf("REMEDIATION_ROLE_NAME environment variable is required")
	}

	if c.Worker.Concurrency < 1 || c.Worker.MatchConcurrency < 1 {
		return errors.NewPermanentf("worker concurrency must be positive")
	}

	if len(c.Notify.KafkaBrokers) > 0 && c.Notify.KafkaTopic == "" {
		return errors.NewPermanentf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
