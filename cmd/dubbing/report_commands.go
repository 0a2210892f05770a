package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dubbing/internal/api"
	"dubbing/internal/preflight"
)

func newReportCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStatsCommand(ctx),
		newHealthCommand(ctx),
		newHistoryCommand(ctx),
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue and cost statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				stats, err := client.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, ctx, stats, func() string { return statsDetail(stats) })
			})
		},
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show pipeline health, breakers and dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				if err := emit(cmd, ctx, health, func() string {
					return strings.Join(healthLines(health, colorize), "\n")
				}); err != nil {
					return err
				}
				if !health.Healthy {
					return fmt.Errorf("pipeline is unhealthy")
				}
				return nil
			})
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var jobID string
	var statuses []string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived job attempts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				entries, err := client.History(cmd.Context(), strings.TrimSpace(jobID), statuses, limit)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, entries, func() string { return historyTable(entries) })
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "Only show attempts for this job")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show attempts ending in these statuses")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	return cmd
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against the local machine and collaborators",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			colorize := shouldColorize(cmd.OutOrStdout())
			if err := emit(cmd, ctx, results, func() string {
				return strings.Join(preflightLines(results, colorize), "\n")
			}); err != nil {
				return err
			}
			return preflight.Err(results)
		},
	}
}
