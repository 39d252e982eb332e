// Package observability provides structured logging, Prometheus metrics,
// and health checking for scorecard.
//
// Key features:
// - Structured JSON logging with configurable log levels
// - Prometheus metrics for exclusion runs, remediation, queue, and policy
// - On-scrape collector for exclusion counts held in the state store
// - Health checks for component status monitoring
// - HTTP endpoints for /metrics, /health, and /ready
package observability
