package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/store"
)

var (
	exportStatus string
	exportTypes  string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export normalized experiment data",
	Long: `Export one row per variation of every usable experiment in CSV or JSON format.

Examples:
  vwop export --format csv > running.csv
  vwop export --status PAUSED --format json > paused.json`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportStatus, "status", "s", "RUNNING", "status bucket (RUNNING, DRAFT, PAUSED)")
	exportCmd.Flags().StringVarP(&exportTypes, "types", "t", "", "comma-separated campaign types (default from config)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}
	filter, err := filterFromFlags(exportStatus, exportTypes)
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
		exps, err := newService(client, s).Load(ctx, filter)
		if err != nil {
			return fmt.Errorf("fetch cycle failed: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), exps)
		}
		return exportJSON(cmd.OutOrStdout(), exps)
	})
}

var exportHeader = []string{
	"experiment_id", "experiment_name", "type", "status", "days_running", "daily_visitors",
	"variation_id", "variation_name", "is_control", "visitors", "orders", "revenue",
	"conversion_rate", "rpv", "orders_per_visitor",
}

func exportCSV(out io.Writer, exps []experiments.Experiment) error {
	w := csv.NewWriter(out)

	// Write header
	if err := w.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, e := range exps {
		for _, v := range e.Variations {
			row := []string{
				strconv.FormatInt(e.ID, 10),
				e.Name,
				e.Type,
				e.Status,
				strconv.Itoa(e.DaysRunning),
				strconv.FormatInt(e.DailyVisitors, 10),
				strconv.FormatInt(v.ID, 10),
				v.Name,
				strconv.FormatBool(v.IsControl),
				strconv.FormatInt(v.Visitors, 10),
				strconv.FormatInt(v.Conversions, 10),
				strconv.FormatFloat(v.Revenue, 'f', 2, 64),
				strconv.FormatFloat(v.ConversionRate, 'f', 2, 64),
				strconv.FormatFloat(v.RPV, 'f', 2, 64),
				strconv.FormatFloat(v.OrdersPerVisitor, 'f', 4, 64),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Experiments []experiments.Experiment `json:"experiments"`
}

func exportJSON(out io.Writer, exps []experiments.Experiment) error {
	if exps == nil {
		exps = []experiments.Experiment{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonExport{Experiments: exps})
}
