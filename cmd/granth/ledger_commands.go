package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"granth/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and manage the processing ledger",
	}

	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	ledgerCmd.AddCommand(newLedgerRetryCommand(ctx))
	ledgerCmd.AddCommand(newLedgerRemoveCommand(ctx))
	ledgerCmd.AddCommand(newLedgerClearCommand(ctx))

	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var attentionOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var docs []*ledger.Document
			switch {
			case attentionOnly:
				docs, err = store.ListAttention(cmd.Context())
			case statusFlag != "":
				status, ok := ledger.ParseStatus(strings.TrimSpace(statusFlag))
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				docs, err = store.List(cmd.Context(), status)
			default:
				docs, err = store.List(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, "Ledger is empty")
				return nil
			}
			rows := make([][]string, 0, len(docs))
			for _, doc := range docs {
				title := doc.TranslitTitle
				if title == "" {
					title = doc.SourceTitle
				}
				flags := ""
				if doc.NeedsAttention {
					flags = "attention"
				} else if doc.FailedStage != "" {
					flags = "retrying " + doc.FailedStage
				}
				rows = append(rows, []string{
					strconv.FormatInt(doc.ID, 10),
					doc.Key,
					truncate(title, 40),
					string(doc.Status),
					flags,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Key", "Title", "Status", "Notes"}, rows, 0))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Only list documents with this status")
	cmd.Flags().BoolVar(&attentionOnly, "attention", false, "Only list documents needing attention")
	return cmd
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|key>",
		Short: "Show one document in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := lookupDocument(cmd, store, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:               %d\n", doc.ID)
			fmt.Fprintf(out, "Key:              %s\n", doc.Key)
			fmt.Fprintf(out, "Status:           %s\n", doc.Status)
			fmt.Fprintf(out, "Source title:     %s\n", doc.SourceTitle)
			fmt.Fprintf(out, "Source author:    %s\n", doc.SourceAuthor)
			fmt.Fprintf(out, "Source URL:       %s\n", doc.SourceURL)
			fmt.Fprintf(out, "Title:            %s\n", doc.TranslitTitle)
			fmt.Fprintf(out, "Author:           %s\n", doc.TranslitAuthor)
			fmt.Fprintf(out, "Raw file:         %s\n", doc.RawFile)
			fmt.Fprintf(out, "Recognized file:  %s\n", doc.RecognizedFile)
			fmt.Fprintf(out, "Converted file:   %s\n", doc.ConvertedFile)
			fmt.Fprintf(out, "Delivered file:   %s\n", doc.DeliveredFile)
			fmt.Fprintf(out, "Checksum:         %s\n", doc.Checksum)
			fmt.Fprintf(out, "Needs attention:  %s\n", yesNo(doc.NeedsAttention))
			if doc.AttentionReason != "" {
				fmt.Fprintf(out, "Attention reason: %s\n", doc.AttentionReason)
			}
			if doc.FailedStage != "" {
				fmt.Fprintf(out, "Failed stage:     %s (%d attempts)\n", doc.FailedStage, doc.StageAttempts(doc.FailedStage))
			}
			if doc.LastError != "" {
				fmt.Fprintf(out, "Last error:       %s\n", doc.LastError)
			}
			fmt.Fprintf(out, "Created:          %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Updated:          %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newLedgerRetryCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Clear failure state so documents become eligible again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("pass document ids or --all")
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var ids []int64
			if !all {
				ids, err = parsePositiveIDs(args)
				if err != nil {
					return err
				}
			}
			updated, err := store.RetryFailed(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d documents\n", updated)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reset every failed document")
	return cmd
}

func newLedgerRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove one document from the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Remove(cmd.Context(), ids[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("document %d not found", ids[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed document %d\n", ids[0])
			return nil
		},
	}
}

func newLedgerClearCommand(ctx *commandContext) *cobra.Command {
	var delivered bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove documents from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var removed int64
			if delivered {
				removed, err = store.ClearDelivered(cmd.Context())
			} else {
				removed, err = store.Clear(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d documents\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&delivered, "delivered", false, "Only remove delivered documents")
	return cmd
}

func lookupDocument(cmd *cobra.Command, store *ledger.Store, ref string) (*ledger.Document, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		if doc, err := store.GetByID(cmd.Context(), id); err == nil {
			return doc, nil
		}
	}
	return store.GetByKey(cmd.Context(), ref)
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid document id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
