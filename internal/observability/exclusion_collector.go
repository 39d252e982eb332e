package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	exclusionCollectorOnce     sync.Once
	exclusionCollectorInstance *ExclusionCollector
)

// ExclusionStatsSource reports aggregate exclusion counts
type ExclusionStatsSource interface {
	GetExclusionStats(ctx context.Context, now time.Time, window time.Duration) (*statestore.ExclusionStats, error)
}

// ExclusionCollector collects exclusion metrics from the state store when /metrics is scraped
type ExclusionCollector struct {
	store         ExclusionStatsSource
	logger        *slog.Logger
	warningWindow time.Duration
	now           func() time.Time

	exclusionsDesc      *prometheus.Desc
	expiredDesc         *prometheus.Desc
	expiringDesc        *prometheus.Desc
	remediationsRunning *prometheus.Desc
}

// NewExclusionCollector creates a new exclusion metrics collector
func NewExclusionCollector(store ExclusionStatsSource, warningWindow time.Duration, logger *slog.Logger) *ExclusionCollector {
	return &ExclusionCollector{
		store:         store,
		logger:        logger,
		warningWindow: warningWindow,
		now:           time.Now,
		exclusionsDesc: prometheus.NewDesc(
			"scorecard_exclusions",
			"Current number of stored exclusions by status",
			[]string{"status"},
			nil,
		),
		expiredDesc: prometheus.NewDesc(
			"scorecard_expired_exclusions",
			"Number of non-archived exclusions past their expiration date",
			nil,
			nil,
		),
		expiringDesc: prometheus.NewDesc(
			"scorecard_expiring_exclusions_soon",
			"Number of non-archived exclusions expiring within the warning window",
			nil,
			nil,
		),
		remediationsRunning: prometheus.NewDesc(
			"scorecard_remediations_in_progress",
			"Number of findings currently holding the remediation lock",
			nil,
			nil,
		),
	}
}

// RegisterExclusionCollector registers the exclusion collector exactly once
func RegisterExclusionCollector(store ExclusionStatsSource, warningWindow time.Duration, logger *slog.Logger) {
	exclusionCollectorOnce.Do(func() {
		exclusionCollectorInstance = NewExclusionCollector(store, warningWindow, logger)
		prometheus.MustRegister(exclusionCollectorInstance)
		logger.Info("exclusion metrics collector registered")
	})
}

// Describe sends the metric descriptors to the provided channel
func (c *ExclusionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.exclusionsDesc
	ch <- c.expiredDesc
	ch <- c.expiringDesc
	ch <- c.remediationsRunning
}

// Collect queries the state store and sends current metrics to the provided channel
func (c *ExclusionCollector) Collect(ch chan<- prometheus.Metric) {
	// Bound the scrape so a locked database cannot stall /metrics.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stats, err := c.store.GetExclusionStats(ctx, c.now(), c.warningWindow)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("exclusion metric collection timed out (likely database locked)", "error", err)
		} else {
			c.logger.Error("failed to collect exclusion metrics", "error", err)
		}
		return
	}

	for status, count := range stats.ByStatus {
		ch <- prometheus.MustNewConstMetric(
			c.exclusionsDesc,
			prometheus.GaugeValue,
			float64(count),
			status,
		)
	}
	ch <- prometheus.MustNewConstMetric(c.expiredDesc, prometheus.GaugeValue, float64(stats.Expired))
	ch <- prometheus.MustNewConstMetric(c.expiringDesc, prometheus.GaugeValue, float64(stats.ExpiringSoon))
	ch <- prometheus.MustNewConstMetric(c.remediationsRunning, prometheus.GaugeValue, float64(stats.InProgress))
}
