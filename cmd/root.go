// Package cmd defines and implements the CLI commands for the concurso-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/app"
	"github.com/JakeFAU/concurso-crawler/internal/config"
	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Run(ctx context.Context) (contest.BatchStats, error)
	Prune(ctx context.Context) (int, error)
	Sync(ctx context.Context) (app.SyncReport, error)
	Serve(ctx context.Context) error
	Logger() *zap.Logger
	Close()
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "concurso-crawler",
		Short: "Scans Brazilian public-sector contest listings for matching roles.",
		Long: `concurso-crawler walks a contest listing page, reads each contest's
announcement document, and keeps the contests whose documents name one of
the configured job roles, together with their registration window.`,
		SilenceUsage: true,

		// Builds the application once config is known and injects it for the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); CONCURSO_* environment variables override it")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPruneCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAllCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	root.SetContext(context.Background())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func printStats(w io.Writer, s contest.BatchStats) {
	fmt.Fprintf(w, "run %s: listed=%d attempted=%d matched=%d unmatched=%d expired=%d skipped=%d failed=%d duration=%s\n",
		s.RunID, s.Listed, s.Attempted, s.Matched, s.Unmatched, s.Expired, s.Skipped, s.Failed, s.Duration)
}
