// Command dubbingd runs the dubbing daemon in the foreground. It is the
// binary service managers launch; `dubbing start` uses the CLI's own daemon
// subcommand instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dubbing/internal/config"
	"dubbing/internal/daemonrun"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var configPath string
	var logLevel string
	cmd := &cobra.Command{
		Use:           "dubbingd",
		Short:         "Dubbing pipeline daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logLevel)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

func run(ctx context.Context, configPath, logLevel string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	err = daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: logLevel})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
