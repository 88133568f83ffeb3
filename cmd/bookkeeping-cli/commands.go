package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"bookkeeping/internal/analytics"
	"bookkeeping/internal/csvimport"
	"bookkeeping/internal/drafts"
	"bookkeeping/internal/importer"
	applog "bookkeeping/internal/log"
)

func newImportCmd(a *app) *cobra.Command {
	var dryRun, dump bool
	cmd := &cobra.Command{
		Use:   "import [flags] <file>",
		Short: "Parse a CSV or XLSX file and store its rows as one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			parsed, err := csvimport.NewParser().ParseFile(filepath.Base(path), f)
			if err != nil {
				return fmt.Errorf("%s: %s", path, csvimport.UserMessage(err))
			}
			fmt.Fprintf(a.out, "%s: %s\n", filepath.Base(path), csvimport.Describe(parsed))

			if dump {
				printer := pp.New()
				printer.SetColoringEnabled(false)
				printer.SetOutput(a.out)
				printer.Println(parsed)
			}
			if dryRun {
				return nil
			}

			res, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if res.Cleanup != nil {
				defer res.Cleanup()
			}

			buf := drafts.NewBuffer()
			buf.Load(parsed)
			net := buf.NetImpact()
			if err := importer.New(res.Backend, nil).Commit(cmd.Context(), buf); err != nil {
				return err
			}
			applog.NewStructuredLogger(a.logger).LogTransactionsImported(cmd.Context(), len(parsed), net.Cents)
			fmt.Fprintf(a.out, "Imported %d transactions.\n", len(parsed))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and summarize without writing")
	cmd.Flags().BoolVar(&dump, "dump", false, "Print every parsed draft")
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print totals and the expense ranking for a year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if res.Cleanup != nil {
				defer res.Cleanup()
			}

			txs, err := res.Backend.ListTransactions(cmd.Context())
			if err != nil {
				return fmt.Errorf("list transactions: %w", err)
			}
			if year == 0 {
				year = analytics.DefaultYear(analytics.Years(txs), time.Now())
			}
			d := analytics.Build(txs, year)

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "\tIncome\tExpenses\tNet\tCount\t")
			fmt.Fprintf(tw, "All time\t%s\t%s\t%s\t%d\t\n", d.AllTime.Income, d.AllTime.Expenses, d.AllTime.Net, d.AllTime.Count)
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t\n", d.Year, d.YearTotals.Income, d.YearTotals.Expenses, d.YearTotals.Net, d.YearTotals.Count)
			if err := tw.Flush(); err != nil {
				return err
			}

			if len(d.Ranking.Entries) == 0 {
				fmt.Fprintf(a.out, "\nNo expenses in %d.\n", d.Year)
				return nil
			}
			fmt.Fprintf(a.out, "\nExpenses by category, %d\n", d.Year)
			tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			for _, e := range d.Ranking.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", e.Category, e.Amount, e.Percent)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Year to summarize (default: current year if present, else newest)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete transactions by id in one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if res.Cleanup != nil {
				defer res.Cleanup()
			}
			if err := res.Backend.DeleteTransactions(cmd.Context(), args); err != nil {
				return fmt.Errorf("delete transactions: %w", err)
			}
			applog.NewStructuredLogger(a.logger).LogTransactionsDeleted(cmd.Context(), args)
			fmt.Fprintf(a.out, "Deleted %d transactions.\n", len(args))
			return nil
		},
	}
}
