package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"NewsAggregator/internal/app"
	"NewsAggregator/internal/config"
	"NewsAggregator/internal/logging"
)

const configPathEnv = "NEWS_AGGREGATOR_CONFIG"

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "newsaggregator",
		Short:         "Collect, summarize and publish AI/ML news",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFlag != "" {
				return os.Setenv(configPathEnv, configFlag)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newScheduleCommand())
	rootCmd.AddCommand(newSetupDBCommand())
	return rootCmd
}

// withApp loads configuration, builds the application and closes it after fn.
func withApp(ctx context.Context, fn func(cfg config.Config, application *app.Application) error) error {
	cfg := config.Load()
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(cfg, application)
}

func newRunCommand() *cobra.Command {
	var (
		backfillDays int
		outputPath   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and print the payload as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(cfg config.Config, application *app.Application) error {
				days := cfg.Pipeline.BackfillDays
				if cmd.Flags().Changed("backfill-days") {
					days = backfillDays
				}

				state, err := application.RunOnce(cmd.Context(), days)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if outputPath != "" {
					f, err := os.Create(outputPath)
					if err != nil {
						return fmt.Errorf("create output: %w", err)
					}
					defer f.Close()
					out = f
				}
				return writeJSON(out, state.Payload)
			})
		},
	}
	cmd.Flags().IntVar(&backfillDays, "backfill-days", 0, "Days of history to collect before today")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the payload to a file instead of stdout")
	return cmd
}

func newServeCommand() *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(_ config.Config, application *app.Application) error {
				return application.Serve(cmd.Context(), withScheduler)
			})
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Also run the pipeline on the configured cron expression")
	return cmd
}

func newScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron expression",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(_ config.Config, application *app.Application) error {
				return application.Schedule(cmd.Context())
			})
		},
	}
}

func newSetupDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-db",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(_ config.Config, application *app.Application) error {
				if err := application.SetupDB(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Database schema ready")
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
