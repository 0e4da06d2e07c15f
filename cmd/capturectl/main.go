package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	inmem      bool
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "capturectl",
		Short:         "Capture images, curate recognized values and manage saved sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			// logs go to stderr so command output on stdout stays machine-readable
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("FIELDCAPTURE_CONFIG"), "YAML config file overlaying environment settings")
	root.PersistentFlags().BoolVar(&opts.inmem, "inmem", false, "use an in-memory SQLite store (nothing is kept after exit)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newScanCmd(opts),
		newWatchCmd(opts),
		newSessionsCmd(opts),
		newServeCmd(opts),
	)
	return root
}
