package cli

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

var (
	settingsDevice  string
	settingsCountry string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show campaigns from the account's settings.js",
	Long: `Download the account's settings.js, extract the embedded settings object
and print the campaigns and variations it contains. The script is parsed,
never executed.

Example:
  vwop settings --device mobile --country GB`,
	RunE: runSettings,
}

func init() {
	settingsCmd.Flags().StringVar(&settingsDevice, "device", "desktop", "device type sent as dt")
	settingsCmd.Flags().StringVar(&settingsCountry, "country", "US", "country code sent as cc")
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	settings, err := client.FetchSettings(ctx, vwo.SettingsParams{
		DeviceType:  settingsDevice,
		CountryCode: settingsCountry,
	})
	if err != nil {
		return err
	}

	printSettings(cmd.OutOrStdout(), settings)
	return nil
}

func printSettings(out io.Writer, settings *vwo.Settings) {
	campaigns := settings.Campaigns()
	if len(campaigns) == 0 {
		fmt.Fprintln(out, "No campaigns in settings.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tVARIATIONS")
	for _, id := range sortedKeys(campaigns) {
		c := campaigns[id]

		names := make([]string, 0, len(c.Variations))
		for _, vid := range sortedKeys(map[string]vwo.SettingsVariation(c.Variations)) {
			names = append(names, fmt.Sprintf("%s=%s", vid, c.Variations[vid].Name))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, c.Name, c.Type, c.Status, strings.Join(names, ", "))
	}
	w.Flush()
}

// sortedKeys orders numeric keys numerically and the rest after them.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		na, errA := strconv.ParseInt(a, 10, 64)
		nb, errB := strconv.ParseInt(b, 10, 64)
		switch {
		case errA == nil && errB == nil:
			return cmp.Compare(na, nb)
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}
