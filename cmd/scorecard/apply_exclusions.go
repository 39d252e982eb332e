package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/queue"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/worker"
)

func newApplyExclusionsCmd() *cobra.Command {
	var scanID string

	cmd := &cobra.Command{
		Use:   "apply-exclusions",
		Short: "Apply all current exclusions to one scan and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCore()
			if err != nil {
				return err
			}
			defer c.close()

			ctx := cmd.Context()
			if scanID == "" {
				latest, err := c.store.GetLatestCompletedScan(ctx)
				if err != nil {
					if errors.Is(err, statestore.ErrScanNotFound) {
						return fmt.Errorf("no completed scan found; pass --scan-id")
					}
					return err
				}
				scanID = latest.ScanID
			}

			policyEngine, err := newPolicyEngine(c.catalog, c.logger)
			if err != nil {
				return err
			}

			w := worker.NewExcludeWorker(
				queue.NewInMemoryQueue(1),
				c.store,
				c.catalog,
				c.newMatcher(),
				policyEngine,
				worker.Config{
					RetryAttempts:    c.cfg.Worker.RetryAttempts,
					RetryBackoff:     c.cfg.Worker.RetryBackoff,
					Concurrency:      1,
					MatchConcurrency: c.cfg.Worker.MatchConcurrency,
				},
				c.logger,
			)

			result, err := w.ApplyNow(ctx, scanID)
			if err != nil {
				return fmt.Errorf("apply exclusions to %s: %w", scanID, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&scanID, "scan-id", "", "scan to apply exclusions to (default: latest completed scan)")
	return cmd
}
