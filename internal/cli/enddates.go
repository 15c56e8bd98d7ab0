package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/stats"
)

var endDatesCmd = &cobra.Command{
	Use:   "end-dates <id>...",
	Short: "Estimate when campaigns reach their sample size",
	Long: `Estimate the required sample size from the control conversion rate and
the goal's minimum detectable effect, then project the end date from the
current daily traffic. Prints a Markdown table.

Example:
  vwop end-dates 222 225 232`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEndDates,
}

func init() {
	rootCmd.AddCommand(endDatesCmd)
}

func runEndDates(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	report, err := fetchSequential(ctx, ids)
	if err != nil {
		return err
	}

	printEndDates(cmd.OutOrStdout(), report, time.Now())
	printFailures(cmd.ErrOrStderr(), report)
	return nil
}

func printEndDates(out io.Writer, report *experiments.Report, now time.Time) {
	fmt.Fprintln(out, "| ID | Name | Daily Visitors | Control CR | MDE | Est. Sample Size | Est. End Date |")
	fmt.Fprintln(out, "|----|------|----------------|------------|-----|------------------|---------------|")

	for _, item := range report.Items {
		if item.Reason == experiments.ReasonNoPrimaryGoal || item.Reason == experiments.ReasonNoAggregatedData {
			fmt.Fprintf(out, "| %d | N/A | N/A | N/A | N/A | N/A | N/A |\n", item.ID)
			continue
		}
		if !item.OK() {
			continue
		}

		est := stats.EstimateEndDate(item.Experiment, now)
		mde := "N/A"
		if est.MDEPercent > 0 {
			mde = fmt.Sprintf("%g%%", est.MDEPercent)
		}
		fmt.Fprintf(out, "| %d | %s | %d | %.2f%% | %s | %d | %s |\n",
			est.ExperimentID,
			est.Name,
			est.DailyVisitors,
			est.ControlRate*100,
			mde,
			est.RequiredSample,
			est.Label(),
		)
	}
}
