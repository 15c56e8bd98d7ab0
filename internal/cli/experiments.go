package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/format"
	"github.com/headline-goat/vwo-pulse/internal/store"
)

var (
	experimentsStatus string
	experimentsTypes  string
	experimentsFormat string
)

var experimentsCmd = &cobra.Command{
	Use:   "experiments",
	Short: "Run one fetch cycle and print normalized experiments",
	Long: `List campaigns, fetch their details in rate-limited batches and print the
normalized primary goal metrics. Imported override data is applied.

Examples:
  vwop experiments
  vwop experiments --status PAUSED --format json > paused.json`,
	RunE: runExperiments,
}

func init() {
	experimentsCmd.Flags().StringVarP(&experimentsStatus, "status", "s", "RUNNING", "status bucket (RUNNING, DRAFT, PAUSED)")
	experimentsCmd.Flags().StringVarP(&experimentsTypes, "types", "t", "", "comma-separated campaign types (default from config)")
	experimentsCmd.Flags().StringVarP(&experimentsFormat, "format", "f", "table", "output format (table or json)")
	rootCmd.AddCommand(experimentsCmd)
}

func runExperiments(cmd *cobra.Command, args []string) error {
	if experimentsFormat != "table" && experimentsFormat != "json" {
		return fmt.Errorf("invalid format: must be 'table' or 'json'")
	}
	filter, err := filterFromFlags(experimentsStatus, experimentsTypes)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	return withStore(func(s store.Store) error {
		report, err := newService(client, s).Run(ctx, filter)
		if err != nil {
			return fmt.Errorf("fetch cycle failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if experimentsFormat == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report.Experiments())
		}

		printExperiments(out, report.Experiments())
		printFailures(cmd.ErrOrStderr(), report)
		return nil
	})
}

func printExperiments(out io.Writer, exps []experiments.Experiment) {
	if len(exps) == 0 {
		fmt.Fprintln(out, "No usable experiments.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tDAYS\tDAILY\tVISITORS\tVARIATIONS\tGOAL")
	for _, e := range exps {
		name := e.Name
		if e.Overridden {
			name += " (imported)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			e.ID,
			name,
			e.Type,
			e.DaysRunning,
			format.Number(e.DailyVisitors),
			format.Number(e.TotalVisitors),
			len(e.Variations),
			e.PrimaryGoal,
		)
	}
	w.Flush()
}

func printFailures(out io.Writer, report *experiments.Report) {
	failures := report.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, f := range failures {
		if f.Err != nil {
			fmt.Fprintf(out, "ID %d: ERROR - %s (%v)\n", f.ID, f.Reason, f.Err)
			continue
		}
		fmt.Fprintf(out, "ID %d: skipped - %s\n", f.ID, f.Reason)
	}
	if report.RateLimited > 0 {
		fmt.Fprintf(out, "%d requests were rate limited\n", report.RateLimited)
	}
}
