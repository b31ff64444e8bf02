package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"granth/internal/ledger"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger progress at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			lastScan, err := store.LastScan(cmd.Context())
			if err != nil {
				return err
			}
			attention, err := store.ListAttention(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := isatty.IsTerminal(os.Stdout.Fd())

			total := 0
			rows := make([][]string, 0, len(stats))
			for _, status := range ledger.AllStatuses() {
				count := stats[status]
				total += count
				rows = append(rows, []string{string(status), strconv.Itoa(count)})
			}
			fmt.Fprintln(out, renderTable([]string{"Status", "Documents"}, rows, 1))
			fmt.Fprintf(out, "Total: %d documents\n", total)

			if lastScan.IsZero() {
				fmt.Fprintln(out, "Catalog never scanned")
			} else {
				fmt.Fprintf(out, "Last catalog scan: %s\n", lastScan.Format("2006-01-02 15:04:05"))
			}

			if len(attention) == 0 {
				fmt.Fprintln(out, colorLine("No documents need attention", ansiGreen, colorize))
				return nil
			}
			fmt.Fprintln(out, colorLine(fmt.Sprintf("%d documents need attention:", len(attention)), ansiYellow, colorize))
			attentionRows := make([][]string, 0, len(attention))
			for _, doc := range attention {
				attentionRows = append(attentionRows, []string{
					strconv.FormatInt(doc.ID, 10),
					doc.Key,
					doc.FailedStage,
					truncate(doc.AttentionReason, 70),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Key", "Failed Stage", "Reason"}, attentionRows, 0))
			return nil
		},
	}
}

func colorLine(line, color string, colorize bool) string {
	if !colorize || color == "" {
		return line
	}
	return color + line + ansiReset
}

func truncate(value string, limit int) string {
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
