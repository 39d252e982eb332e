package config

import (
	"time"
)

// Config represents the complete application configuration
type Config struct {
	CatalogPath   string
	Queue         QueueConfig
	Worker        WorkerConfig
	StateStore    StateStoreConfig
	API           APIConfig
	Remediation   RemediationConfig
	Notify        NotifyConfig
	Observability ObservabilityConfig
}

// QueueConfig configures the in-memory task queue
type QueueConfig struct {
	BufferSize int
}

// WorkerConfig configures the exclude worker and the watcher
type WorkerConfig struct {
	PollInterval     time.Duration
	ReapplyInterval  time.Duration
	RetryAttempts    int
	RetryBackoff     time.Duration
	Concurrency      int
	MatchConcurrency int
}

// StateStoreConfig configures the state store
type StateStoreConfig struct {
	SQLitePath  string
	ScansToKeep int
}

// APIConfig configures the HTTP API server
type APIConfig struct {
	Enabled   bool
	Port      int
	JWTSecret string
	ReadOnly  bool
}

// RemediationConfig configures role elevation for remediation workers
type RemediationConfig struct {
	RoleName      string
	RolePreflight bool
	AWSRegion     string
}

// NotifyConfig configures the remediation notification sink
type NotifyConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// ObservabilityConfig configures logging and metrics
type ObservabilityConfig struct {
	LogLevel        string
	MetricsPort     int
	HealthCheckPort int
}
