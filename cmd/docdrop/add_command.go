package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docdrop/internal/queue"
	"docdrop/internal/queueaccess"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var tags []int64
	var documentType int64
	var correspondent int64

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Queue a document for delivery to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}

			meta := queue.Metadata{Title: title, Tags: tags}
			if cmd.Flags().Changed("document-type") {
				meta.DocumentTypeID = &documentType
			}
			if cmd.Flags().Changed("correspondent") {
				meta.CorrespondentID = &correspondent
			}

			return ctx.withAccess(func(session queueaccess.Session) error {
				item, err := session.Access.Enqueue(cmd.Context(), absPath, meta)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as item #%d (%s)\n", filepath.Base(absPath), item.ID, item.Title)
				if session.Direct {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon not running; the document will upload once it starts")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Document title (derived from the file name when omitted)")
	cmd.Flags().Int64SliceVar(&tags, "tag", nil, "Tag ID to attach (repeatable)")
	cmd.Flags().Int64Var(&documentType, "document-type", 0, "Document type ID")
	cmd.Flags().Int64Var(&correspondent, "correspondent", 0, "Correspondent ID")

	return cmd
}
