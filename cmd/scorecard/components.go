package main

import (
	"fmt"
	"log/slog"

	"github.com/daimoniac/scorecard/internal/config"
	"github.com/daimoniac/scorecard/internal/matcher"
	"github.com/daimoniac/scorecard/internal/observability"
	"github.com/daimoniac/scorecard/internal/policy"
	"github.com/daimoniac/scorecard/internal/statestore"
)

// core holds the components every command needs
type core struct {
	cfg     *config.Config
	catalog *config.Catalog
	logger  *slog.Logger
	store   *statestore.SQLiteStore
}

func loadConfig() (*config.Config, *config.Catalog, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return cfg, catalog, nil
}

func openCore() (*core, error) {
	cfg, catalog, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel)
	slog.SetDefault(logger)

	logger.Debug("initializing state store",
		"path", cfg.StateStore.SQLitePath)
	store, err := statestore.NewSQLiteStore(cfg.StateStore.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
	}

	return &core{cfg: cfg, catalog: catalog, logger: logger, store: store}, nil
}

func (c *core) newMatcher() *matcher.Matcher {
	return matcher.New(c.catalog.ExclusionTypeConfigs(), matcher.WithLogger(c.logger))
}

func newPolicyEngine(catalog *config.Catalog, logger *slog.Logger) (*policy.Engine, error) {
	var pc policy.PolicyConfig
	if p := catalog.GetPolicy(); p != nil {
		pc = policy.PolicyConfig{Expression: p.Expression, FailureMessage: p.FailureMessage}
	}
	engine, err := policy.NewEngine(logger, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	return engine, nil
}

func (c *core) close() {
	if err := c.store.Close(); err != nil {
		c.logger.Error("error closing state store",
			"error", err.Error())
	}
}
