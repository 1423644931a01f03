package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/layerforge/internal/infrastructure/sqlite"
	"github.com/zjrosen/layerforge/internal/ledger"
	"github.com/zjrosen/layerforge/internal/presentation"
)

var (
	runsLimit  int
	runsStatus string
	runsShow   string
	runsJSON   bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent generation runs",
	Long: `List runs recorded in the ledger, newest first.

Examples:
  layerforge runs
  layerforge runs --status aborted
  layerforge runs --show <run-id>   # list the editions of one run
  layerforge runs --json | jq '.[].status'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !cfg.Ledger.Enabled {
			return fmt.Errorf("the ledger is disabled (ledger.enabled: false)")
		}
		status := ledger.RunStatus(runsStatus)
		if status != "" && !status.IsValid() {
			return fmt.Errorf("unknown status %q", runsStatus)
		}

		db, err := sqlite.NewDB(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer func() { _ = db.Close() }()
		repo := db.Ledger()

		if runsShow != "" {
			run, err := repo.FindRun(cmd.Context(), runsShow)
			if err != nil {
				return err
			}
			editions, err := repo.ListEditions(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if runsJSON {
				return presentation.NewFormatter(cmd.OutOrStdout()).FormatRun(presentation.FromLedgerRun(run, editions))
			}
			return printEditions(cmd.OutOrStdout(), run, editions)
		}

		runs, err := repo.ListRuns(cmd.Context(), ledger.ListFilter{Status: status, Limit: runsLimit})
		if err != nil {
			return err
		}
		if runsJSON {
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatRuns(presentation.FromLedgerRuns(runs))
		}
		return printRuns(cmd.OutOrStdout(), runs)
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to list (0 for all)")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "only runs in this state: running, completed, aborted, failed")
	runsCmd.Flags().StringVar(&runsShow, "show", "", "list the editions of this run")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(runsCmd)
}

func printRuns(w io.Writer, runs []*ledger.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tEDITIONS\tDUPLICATES\tSEED\tCOLLECTION")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Status, r.Editions, r.Target, r.Duplicates, r.Seed, r.Collection)
	}
	return tw.Flush()
}

func printEditions(w io.Writer, run *ledger.Run, editions []*ledger.Edition) error {
	_, _ = fmt.Fprintf(w, "Run %s (%s, seed %d)\n", run.ID, run.Status, run.Seed)
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "EDITION\tCONFIGURATION\tHASH\tDNA")
	for _, e := range editions {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", e.Edition, e.Configuration, e.Hash, e.DNA)
	}
	return tw.Flush()
}
