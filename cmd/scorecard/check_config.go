package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daimoniac/scorecard/internal/observability"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the environment configuration and the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, catalog, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if _, err := newPolicyEngine(catalog, observability.NewLogger("error")); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog %s (version %s) is valid\n", cfg.CatalogPath, catalog.Version)
			fmt.Fprintf(out, "  exclusion types: %d\n", len(catalog.ExclusionTypes))
			fmt.Fprintf(out, "  requirements:    %d\n", len(catalog.Requirements))
			fmt.Fprintf(out, "  remediations:    %d\n", len(catalog.Remediations))
			fmt.Fprintf(out, "  accounts:        %d\n", len(catalog.Accounts))
			fmt.Fprintf(out, "  users:           %d\n", len(catalog.Users))
			return nil
		},
	}
}
