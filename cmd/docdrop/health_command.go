package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docdrop/internal/connectivity"
	"docdrop/internal/health"
	"docdrop/internal/logging"
	"docdrop/internal/queue"
	"docdrop/internal/queueaccess"
	"docdrop/internal/server"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe server reachability and show queue diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			result, err := probeServer(cmd, ctx)
			if err != nil {
				return err
			}
			for _, line := range renderSectionHeader("Server", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if result.Online {
				fmt.Fprintln(stdout, renderStatusLine("Reachability", statusOK, "online", colorize))
			} else {
				detail := result.Message
				if result.Detail != "" {
					detail = fmt.Sprintf("%s: %s", result.Message, result.Detail)
				}
				fmt.Fprintln(stdout, renderStatusLine("Reachability", statusError, detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(stdout, line)
			}
			return ctx.withAccess(func(session queueaccess.Session) error {
				summary, err := session.Access.Health(cmd.Context())
				if err != nil {
					return err
				}
				counters := []struct {
					status queue.Status
					count  int
				}{
					{queue.StatusPending, summary.Pending},
					{queue.StatusUploading, summary.Uploading},
					{queue.StatusCompleted, summary.Completed},
					{queue.StatusFailed, summary.Failed},
					{queue.StatusCancelled, summary.Cancelled},
				}
				for _, c := range counters {
					kind := queueStatusKind(c.status, c.count)
					line := renderStatusLine(string(c.status), kind, fmt.Sprintf("%d", c.count), colorize)
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("total", statusInfo, fmt.Sprintf("%d", summary.Total), colorize))
				return nil
			})
		},
	}
}

// probeServer asks the daemon for a classification when it runs, and falls
// back to a direct probe so health checks work without it.
func probeServer(cmd *cobra.Command, ctx *commandContext) (serverProbeResult, error) {
	if client, err := ctx.dialClient(); err == nil {
		resp, probeErr := client.ServerHealth()
		_ = client.Close()
		if probeErr == nil {
			return serverProbeResult{
				Online:  resp.Online,
				Message: resp.Message,
				Detail:  resp.Detail,
			}, nil
		}
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return serverProbeResult{}, err
	}
	if err := cfg.RequireServer(); err != nil {
		return serverProbeResult{}, err
	}
	monitor := connectivity.NewMonitor(cfg, logging.NewNop())
	monitor.EvaluateNow(cmd.Context())
	classifier := health.NewClassifier(monitor, server.NewClient(cfg), logging.NewNop())
	result := classifier.Check(cmd.Context())
	return serverProbeResult{
		Online:  result.Online,
		Message: result.Reason.Message(),
		Detail:  result.Detail,
	}, nil
}

type serverProbeResult struct {
	Online  bool
	Message string
	Detail  string
}
