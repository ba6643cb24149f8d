package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docdrop/internal/ipc"
	"docdrop/internal/queueaccess"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			var statusResp *ipc.StatusResponse
			if client, err := ctx.dialClient(); err == nil {
				resp, statusErr := client.Status()
				_ = client.Close()
				if statusErr == nil {
					statusResp = resp
				}
			}

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range buildSystemStatusLines(ctx, statusResp, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Queue Status", colorize) {
				fmt.Fprintln(stdout, line)
			}

			stats, err := loadQueueStats(cmd, ctx, statusResp)
			if err != nil {
				return err
			}
			rows := buildQueueStatusRows(stats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}
			table := renderTable([]tableColumn{
				{header: "Status"},
				{header: "Count", numeric: true},
			}, rows)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}
}

func buildSystemStatusLines(ctx *commandContext, statusResp *ipc.StatusResponse, colorize bool) []string {
	cfg := ctx.configValue()
	lines := make([]string, 0, 6)

	if statusResp == nil {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
		if cfg != nil {
			lines = append(lines, renderStatusLine("Server", statusInfo, cfg.Server.BaseURL, colorize))
		}
		return lines
	}

	daemonKind := statusWarn
	daemonDetail := "stopped"
	if statusResp.Running {
		daemonKind = statusOK
		daemonDetail = fmt.Sprintf("running (pid %d)", statusResp.PID)
	}
	lines = append(lines, renderStatusLine("Daemon", daemonKind, daemonDetail, colorize))
	lines = append(lines, renderStatusLine("Connectivity", statusInfo, statusResp.Connectivity, colorize))

	serverKind := statusOK
	serverDetail := statusResp.ServerURL
	if !statusResp.ServerOnline {
		serverKind = statusError
		serverDetail = fmt.Sprintf("%s (%s)", statusResp.ServerURL, statusResp.OfflineReason)
	}
	lines = append(lines, renderStatusLine("Server", serverKind, serverDetail, colorize))

	if statusResp.Draining {
		lines = append(lines, renderStatusLine("Delivery", statusInfo, "in progress", colorize))
	} else if statusResp.LastDrainAt != "" {
		detail := "last pass " + statusResp.LastDrainAt
		if statusResp.LastDrainError != "" {
			lines = append(lines, renderStatusLine("Delivery", statusError, detail+": "+statusResp.LastDrainError, colorize))
		} else {
			lines = append(lines, renderStatusLine("Delivery", statusOK, detail, colorize))
		}
	}
	if statusResp.NextRetryAt != "" {
		lines = append(lines, renderStatusLine("Next retry", statusInfo, statusResp.NextRetryAt, colorize))
	}
	if statusResp.BatteryGated {
		lines = append(lines, renderStatusLine("Battery", statusWarn, "uploads paused on low battery", colorize))
	}
	return lines
}

func loadQueueStats(cmd *cobra.Command, ctx *commandContext, statusResp *ipc.StatusResponse) (map[string]int, error) {
	if statusResp != nil {
		return statusResp.QueueStats, nil
	}
	var stats map[string]int
	err := ctx.withAccess(func(session queueaccess.Session) error {
		var statsErr error
		stats, statsErr = session.Access.Stats(cmd.Context())
		return statsErr
	})
	return stats, err
}
