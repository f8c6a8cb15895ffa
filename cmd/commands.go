package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/app"
	"github.com/JakeFAU/concurso-crawler/internal/daterange"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Performs one pass over the contest listing",
		Long: `Fetches the listing once, processes every contest not seen before,
and persists matches as they are found. Fails only when the listing itself
cannot be fetched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := a.Run(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Removes records whose registration window has closed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := a.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d expired records\n", removed)
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pushes persisted records into Postgres and updates their status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.Sync(cmd.Context())
			if err != nil {
				return err
			}
			printSync(cmd, report)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the optional periodic scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context())
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Runs a batch, prunes expired records, then syncs to Postgres",
		Long: `Runs the three steps in order and stops at the first one that fails.
The sync step is skipped when no database is configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			stats, err := a.Run(ctx)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)

			removed, err := a.Prune(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d expired records\n", removed)

			report, err := a.Sync(ctx)
			if errors.Is(err, app.ErrNoDatabase) {
				a.Logger().Info("sync skipped", zap.Error(err))
				return nil
			}
			if err != nil {
				return err
			}
			printSync(cmd, report)
			return nil
		},
	}
}

func printSync(cmd *cobra.Command, report app.SyncReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "synced: inserted=%d updated=%d failed=%d closed=%d\n",
		report.Upsert.Inserted, report.Upsert.Updated, report.Upsert.Failed, report.Closed)
	statuses := make([]daterange.Status, 0, len(report.Summary))
	for s := range report.Summary {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, s := range statuses {
		fmt.Fprintf(out, "  %s: %d\n", s, report.Summary[s])
	}
}
