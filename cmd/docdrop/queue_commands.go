package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"docdrop/internal/ipc"
	"docdrop/internal/queue"
	"docdrop/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the upload queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(session queueaccess.Session) error {
				items, err := session.Access.List(cmd.Context(), listStatuses)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]tableColumn{
					{header: "ID", numeric: true},
					{header: "Title"},
					{header: "Status"},
					{header: "Attempts", numeric: true},
					{header: "Created"},
					{header: "Last Error", maxWidth: errorCellWidth},
				}, buildQueueListRows(items))
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func buildQueueListRows(items []ipc.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Title,
			item.Status,
			strconv.Itoa(item.AttemptCount),
			item.CreatedAt,
			item.LastErrorMessage,
		})
	}
	return rows
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, strconv.Itoa(stats[key])})
	}
	return rows
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show details for a queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withAccess(func(session queueaccess.Session) error {
				item, err := session.Access.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				printQueueItem(cmd, item)
				return nil
			})
		},
	}
}

func printQueueItem(cmd *cobra.Command, item *ipc.QueueItem) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Item #%d\n", item.ID)
	fmt.Fprintf(stdout, "  Title:         %s\n", item.Title)
	fmt.Fprintf(stdout, "  Original name: %s\n", item.OriginalName)
	fmt.Fprintf(stdout, "  Staged copy:   %s\n", item.StagedPath)
	fmt.Fprintf(stdout, "  Status:        %s\n", item.Status)
	fmt.Fprintf(stdout, "  Attempts:      %d\n", item.AttemptCount)
	fmt.Fprintf(stdout, "  Created:       %s\n", item.CreatedAt)
	if item.LastAttemptAt != "" {
		fmt.Fprintf(stdout, "  Last attempt:  %s\n", item.LastAttemptAt)
	}
	if item.NextAttemptAt != "" {
		fmt.Fprintf(stdout, "  Next attempt:  %s\n", item.NextAttemptAt)
	}
	if item.RemoteTaskRef != "" {
		fmt.Fprintf(stdout, "  Server task:   %s\n", item.RemoteTaskRef)
	}
	if item.LastErrorMessage != "" {
		fmt.Fprintf(stdout, "  Last error:    %s (%s)\n", item.LastErrorMessage, item.LastErrorKind)
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Re-queue failed items for delivery (all failed items when no ids given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseItemID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withAccess(func(session queueaccess.Session) error {
				updated, err := session.Access.Retry(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if updated == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed items to retry")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retrying %d item(s)\n", updated)
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending item and discard its staged copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withAccess(func(session queueaccess.Session) error {
				if err := session.Access.Cancel(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled item #%d\n", id)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a completed, failed, or cancelled item from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withAccess(func(session queueaccess.Session) error {
				if err := session.Access.Remove(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed item #%d\n", id)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed or failed queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted == clearFailed {
				return fmt.Errorf("specify exactly one of --completed or --failed")
			}
			return ctx.withAccess(func(session queueaccess.Session) error {
				var removed int64
				var err error
				label := string(queue.StatusCompleted)
				if clearCompleted {
					removed, err = session.Access.ClearCompleted(cmd.Context())
				} else {
					label = string(queue.StatusFailed)
					removed, err = session.Access.ClearFailed(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s item(s)\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed items")
	return cmd
}

func parseItemID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid queue item id %q", arg)
	}
	return id, nil
}
