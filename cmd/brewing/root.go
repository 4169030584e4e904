package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/brewing"
	"github.com/aretw0/brewing/pkg/core"
)

var (
	verbose     bool
	adapterName string
	apiURL      string
	projectDir  string
	timeout     time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "brewing",
	Short: "Local-first editor of product specifications",
	Long: `brewing keeps the specifications of a product in a local project
(.brewing/features/*.md) or behind the brewing REST API. Edits apply
optimistically and are persisted in the background.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fatal("Error", err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&adapterName, "adapter", "", "Collaborator: fs, http or memory (default from config, else fs)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Base URL of the REST API for the http adapter")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "Project directory (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for persistence")
}

// openWorkspace opens the selected project for a one-shot command.
func openWorkspace(extra ...brewing.Option) (*brewing.Workspace, error) {
	opts := []brewing.Option{
		brewing.WithLogger(slog.Default()),
		brewing.WithWatch(false),
	}
	if adapterName != "" {
		opts = append(opts, brewing.WithAdapter(adapterName))
	}
	if apiURL != "" {
		opts = append(opts, brewing.WithAPIBaseURL(apiURL))
	}
	opts = append(opts, extra...)

	ws, err := brewing.Open(projectDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}
	return ws, nil
}

func closeWorkspace(ws *brewing.Workspace) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ws.Close(ctx); err != nil {
		slog.Warn("pending changes may not be persisted", "error", err)
	}
}

// await waits for tx and describes a failure by its kind.
func await(tx *brewing.Transaction) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := tx.Wait(ctx); err != nil {
		if kind := core.KindOf(err); kind != core.KindUnknown {
			return fmt.Errorf("%s failed (%s): %w", tx.Kind, kind, err)
		}
		return fmt.Errorf("%s failed: %w", tx.Kind, err)
	}
	return nil
}
