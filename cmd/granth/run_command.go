package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"granth/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var rescan bool
	var limit int
	var drain bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process eligible documents one stage forward",
		Long: "Run walks every eligible document in the ledger forward by one " +
			"stage. With --drain it keeps going until nothing can make progress. " +
			"Interrupted runs resume from the ledger on the next invocation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			cache, err := ctx.openCache(logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			manager := workflow.NewManager(cfg, store, cache, logger)
			report, err := manager.Run(runCtx, workflow.RunOptions{
				Rescan: rescan,
				Limit:  limit,
				Drain:  drain,
			})
			if report != nil {
				printReport(cmd, report)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&rescan, "rescan", false, "Fetch the catalog again before processing")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum documents to touch per pass (0 = all)")
	cmd.Flags().BoolVar(&drain, "drain", false, "Repeat passes until no document can advance")
	return cmd
}

func printReport(cmd *cobra.Command, report *workflow.Report) {
	out := cmd.OutOrStdout()
	if report.Discovered > 0 {
		fmt.Fprintf(out, "Discovered %d new documents\n", report.Discovered)
	}
	fmt.Fprintf(out, "Processed %d stages across %d passes: %d advanced, %d pending retry, %d need attention\n",
		report.Processed, report.Passes, report.Advanced, report.Retried, report.Attention)
	if report.Delivered > 0 {
		fmt.Fprintf(out, "Delivered %d documents\n", report.Delivered)
	}
}
