package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/stats"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <id>...",
	Short: "Show performance metrics for campaigns",
	Long: `Fetch each campaign one at a time (one request per second, with a
cooldown after HTTP 429) and print visitors, orders, conversion rate,
revenue per visitor and the significance of each variation against the
control.

Example:
  vwop analyze 222 225 232`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
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

	printPerformance(cmd.OutOrStdout(), report)
	return nil
}

// fetchSequential fetches ids one by one with imported overrides applied.
func fetchSequential(ctx context.Context, ids []int64) (*experiments.Report, error) {
	fetcher, err := newSequentialFetcher()
	if err != nil {
		return nil, err
	}
	overlay, err := loadOverlay(ctx)
	if err != nil {
		return nil, err
	}
	return fetcher.Fetch(ctx, ids, overlay)
}

func printPerformance(out io.Writer, report *experiments.Report) {
	rule := strings.Repeat("=", 110)
	fmt.Fprintln(out, rule)

	for _, item := range report.Items {
		if !item.OK() {
			msg := item.Reason
			if item.Err != nil {
				msg = item.Err.Error()
			}
			fmt.Fprintf(out, "\nID %d: ERROR - %s\n", item.ID, msg)
			continue
		}

		exp := item.Experiment
		result := stats.Analyze(exp)

		fmt.Fprintf(out, "\n%s\n", rule)
		fmt.Fprintf(out, "ID: %d | %s\n", exp.ID, exp.Name)
		fmt.Fprintf(out, "Type: %s | Days Running: %d | Daily Visitors: %d\n", exp.Type, exp.DaysRunning, exp.DailyVisitors)
		fmt.Fprintf(out, "Primary Goal: %s (%s)\n", exp.PrimaryGoal, exp.GoalType)
		if exp.Overridden {
			fmt.Fprintln(out, "Includes imported data")
		}
		fmt.Fprintln(out, strings.Repeat("-", 110))

		fmt.Fprintf(out, "%-22s | %-10s | %-8s | %-8s | %-12s | %-9s | %-8s | %-9s | %s\n",
			"Variation", "Visitors", "Orders", "CR %", "Revenue", "RPV", "Orders/V", "Lift", "Confidence")
		fmt.Fprintln(out, strings.Repeat("-", 110))

		for i, v := range exp.Variations {
			marker := "  "
			if v.IsControl {
				marker = "* "
			}
			name := truncate(marker+v.Name, 22)

			lift, confidence := "-", "-"
			if r := result.Variations[i]; !r.IsControl {
				lift = fmt.Sprintf("%+.1f%%", r.Lift)
				confidence = fmt.Sprintf("%.1f%%", r.Confidence*100)
			}

			fmt.Fprintf(out, "%-22s | %-10d | %-8d | %-8.2f | $%-11.2f | $%-8.2f | %-8.4f | %-9s | %s\n",
				name,
				v.Visitors,
				v.Conversions,
				v.ConversionRate,
				v.Revenue,
				v.RPV,
				v.OrdersPerVisitor,
				lift,
				confidence,
			)
		}

		if len(result.Variations) > 1 {
			leading := result.Variations[result.Leading].Name
			confPct := result.ConfidenceLevel * 100
			switch {
			case result.Confident:
				fmt.Fprintf(out, "\nStatistical significance: %.1f%% confident %q is the winner\n", confPct, leading)
			case confPct >= 90:
				fmt.Fprintf(out, "\nStatistical significance: %.1f%% confident %q leads (not yet significant)\n", confPct, leading)
			default:
				fmt.Fprintln(out, "\nStatistical significance: Not enough data to determine a winner")
			}
		}
	}
	fmt.Fprintf(out, "\n%s\n", rule)
}
