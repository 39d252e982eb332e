package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/daimoniac/scorecard/internal/api"
	"github.com/daimoniac/scorecard/internal/notify"
	"github.com/daimoniac/scorecard/internal/observability"
	"github.com/daimoniac/scorecard/internal/queue"
	"github.com/daimoniac/scorecard/internal/remediation"
	"github.com/daimoniac/scorecard/internal/service"
	"github.com/daimoniac/scorecard/internal/watcher"
	"github.com/daimoniac/scorecard/internal/worker"
)

const expiryWarningWindow = 7 * 24 * time.Hour

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API, the scan watcher and the exclude worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.close()
	cfg, logger := c.cfg, c.logger

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("starting scorecard",
		"catalog_path", cfg.CatalogPath,
		"log_level", cfg.Observability.LogLevel)

	_ = observability.GetMetrics()
	observability.RegisterExclusionCollector(c.store, expiryWarningWindow, logger)

	healthChecker := observability.NewHealthChecker(logger)
	healthChecker.RegisterCheck(observability.ComponentStateStore, c.store.Ping)
	healthChecker.RegisterComponent(observability.ComponentCatalog)
	healthChecker.RegisterComponent(observability.ComponentWorker)
	healthChecker.UpdateComponentHealth(observability.ComponentCatalog, observability.StatusHealthy, "")

	obsServer := observability.NewServer(
		cfg.Observability.MetricsPort,
		cfg.Observability.HealthCheckPort,
		logger,
		healthChecker,
	)
	go func() {
		if err := obsServer.Start(ctx); err != nil {
			logger.Error("observability server error",
				"error", err.Error())
		}
	}()
	go healthChecker.StartPeriodicChecks(ctx, 30*time.Second)

	logger.Debug("loading AWS configuration",
		"region", cfg.Remediation.AWSRegion)
	var awsOpts []func(*awsconfig.LoadOptions) error
	if cfg.Remediation.AWSRegion != "" {
		awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.Remediation.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	notifier, closeNotifier, err := newNotifier(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic, healthChecker, c)
	if err != nil {
		return err
	}
	defer closeNotifier()

	registry := remediation.NewRegistry()
	registry.Register(remediation.SecurityGroupIngressWorkerName,
		remediation.SecurityGroupIngressFactory(remediation.DefaultEC2ClientFactory))
	manager := remediation.NewManager(
		c.store,
		c.catalog,
		registry,
		remediation.NewSTSElevator(awsCfg),
		cfg.Remediation.RoleName,
		remediation.WithNotifier(notifier),
		remediation.WithLogger(logger),
		remediation.WithRolePreflight(cfg.Remediation.RolePreflight),
	)
	logger.Debug("remediation manager initialized",
		"workers", registry.Names(),
		"region", awsCfg.Region)

	policyEngine, err := newPolicyEngine(c.catalog, logger)
	if err != nil {
		return err
	}

	taskQueue := queue.NewInMemoryQueue(cfg.Queue.BufferSize)

	scanWatcher := watcher.NewWatcher(c.store, taskQueue, watcher.Config{
		PollInterval:    cfg.Worker.PollInterval,
		ReapplyInterval: cfg.Worker.ReapplyInterval,
		ScansToKeep:     cfg.StateStore.ScansToKeep,
	}, logger)

	excludeWorker := worker.NewExcludeWorker(
		taskQueue,
		c.store,
		c.catalog,
		c.newMatcher(),
		policyEngine,
		worker.Config{
			RetryAttempts:    cfg.Worker.RetryAttempts,
			RetryBackoff:     cfg.Worker.RetryBackoff,
			Concurrency:      cfg.Worker.Concurrency,
			MatchConcurrency: cfg.Worker.MatchConcurrency,
		},
		logger,
	)
	healthChecker.UpdateComponentHealth(observability.ComponentWorker, observability.StatusHealthy, "")

	var apiServer *api.APIServer
	if cfg.API.Enabled {
		apiServer = api.NewAPIServer(&cfg.API, api.Deps{
			Exclusions: service.NewExclusionService(c.store, c.catalog, service.WithLogger(logger)),
			Findings:   service.NewFindingService(c.store, c.catalog, logger),
			Remediator: manager,
			Scans:      c.store,
			Queue:      taskQueue,
			Users:      c.catalog,
		}, logger)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scanWatcher.Start(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("scan watcher error: %w", err)
		}
		logger.Debug("scan watcher stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := excludeWorker.Start(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("worker error: %w", err)
		}
		logger.Debug("worker stopped")
	}()

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errChan <- fmt.Errorf("API server error: %w", err)
			}
			logger.Debug("API server stopped")
		}()
	}

	logger.Info("all components started successfully")

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errChan:
		logger.Error("component error, initiating shutdown",
			"error", err.Error())
		healthChecker.UpdateComponentHealth(observability.ComponentWorker, observability.StatusUnhealthy, err.Error())
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	if queueDepth, _ := taskQueue.GetQueueDepth(shutdownCtx); queueDepth > 0 {
		logger.Warn("queue not empty at shutdown",
			"remaining_tasks", queueDepth)
	}

	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down observability server",
			"error", err.Error())
	}

	logger.Info("shutdown complete")
	return nil
}

// newNotifier publishes to Kafka when brokers are configured and logs otherwise
func newNotifier(brokers []string, topic string, hc *observability.HealthChecker, c *core) (notify.Notifier, func(), error) {
	if len(brokers) == 0 {
		c.logger.Info("no Kafka brokers configured, remediation outcomes are logged only")
		return notify.NewLogNotifier(c.logger), func() {}, nil
	}

	kafka, err := notify.NewKafkaNotifier(brokers, topic, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Kafka notifier: %w", err)
	}
	hc.RegisterOptionalCheck(observability.ComponentNotifier, kafka.Ping)
	c.logger.Debug("Kafka notifier initialized",
		"brokers", brokers,
		"topic", topic)
	return kafka, kafka.Close, nil
}
