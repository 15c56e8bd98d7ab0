package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

var (
	listStatus string
	listTypes  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	Long: `List campaigns matching a status bucket and type allow-list. PAUSED also
matches STOPPED campaigns and DRAFT also matches NOT_STARTED.

Example:
  vwop list --status PAUSED --types ab,split_url`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "RUNNING", "status bucket (RUNNING, DRAFT, PAUSED)")
	listCmd.Flags().StringVarP(&listTypes, "types", "t", "", "comma-separated campaign types (default from config)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	filter, err := filterFromFlags(listStatus, listTypes)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	campaigns, err := client.ListCampaigns(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(campaigns) == 0 {
		fmt.Fprintf(out, "No %s campaigns.\n", filter.Status)
		return nil
	}
	printCampaigns(out, campaigns)
	return nil
}

func printCampaigns(out io.Writer, campaigns []vwo.Campaign) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tCREATED")
	for _, c := range campaigns {
		created := "-"
		if c.CreatedOn > 0 {
			created = time.Unix(c.CreatedOn, 0).UTC().Format(time.DateOnly)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.Status, created)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d campaigns\n", len(campaigns))
}
