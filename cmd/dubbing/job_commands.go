package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dubbing/internal/api"
)

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCommand(ctx),
		newStatusCommand(ctx),
		newListCommand(ctx),
		newCancelCommand(ctx),
		newRetryCommand(ctx),
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "submit <video>",
		Short: "Queue a video for dubbing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.TrimSpace(args[0])
			if abs, err := filepath.Abs(input); err == nil {
				input = abs
			}
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Submit(cmd.Context(), api.SubmitRequest{
					InputVideo:     input,
					TargetLanguage: strings.TrimSpace(language),
				})
				if err != nil {
					return err
				}
				return emit(cmd, ctx, job, func() string {
					return fmt.Sprintf("Queued job %s (%s)", job.ID, job.TargetLanguage)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&language, "lang", "l", "", "Target language code (defaults to pipeline.target_language)")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Job(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				return emit(cmd, ctx, job, func() string { return jobDetail(job) })
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs in submission order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				jobs, err := client.Jobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, jobs, func() string { return jobTable(jobs) })
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show jobs in these statuses")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Cancel(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				return emit(cmd, ctx, job, func() string {
					return fmt.Sprintf("Job %s cancelled", job.ID)
				})
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Retry(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				return emit(cmd, ctx, job, func() string {
					return fmt.Sprintf("Job %s requeued", job.ID)
				})
			})
		},
	}
}
