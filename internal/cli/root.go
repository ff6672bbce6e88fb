// Package cli provides the command-line interface for hygeia.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/hygeia-go/internal/config"
	"github.com/raphaelgruber/hygeia-go/internal/service"
	"github.com/raphaelgruber/hygeia-go/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Process state built by PersistentPreRunE
	cfg             config.Config
	logger          *slog.Logger
	session         *service.Session
	closeLog        func() error
	shutdownTracing func(context.Context) error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hygeia",
	Short: "Mixed graphical network analysis machinery",
	Long: `Hygeia builds contract documents for a tabular dataset, fits a mixed
graphical model through an external engine and explores the resulting network
with centrality, bridge and backbone metrics.

Data flows as schema.json + model_spec.json -> engine -> results.json, every
document checked against its JSON contract.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Terminal output stays quiet unless asked for; the log file gets
		// everything at the configured level.
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)

		shutdownTracing, err = telemetry.Init(cmd.Context(), telemetry.Config{
			ServiceName:    "hygeia",
			ServiceVersion: Version,
			Exporter:       cfg.TraceExporter,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}

		session, err = service.NewSession(service.OptionsFromConfig(cfg, logger))
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownTracing != nil {
			if err := shutdownTracing(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to flush traces: %v\n", err)
			}
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, so a cancelled context
// stops a running engine.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(specCmd)
	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(guardrailsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(analyzeCmd)
}
