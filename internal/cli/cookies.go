package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/cookies"
)

var (
	cookiesFile     string
	cookiesURL      string
	cookiesSet      []string
	cookiesTracking string
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect or build VWO variation cookies",
	Long: `Read a browser cookie export (a JSON array of {name, value, domain}) and
show which variation each test is pinned to on a page. With --set, print the
Set-Cookie values that force a variation; with --tracking, print the
_vwo_disable cookie.

Examples:
  vwop cookies --file cookies.json --url https://shop.example.com/cart
  vwop cookies --url https://shop.example.com --set 222=2 --set 225=1
  vwop cookies --url https://shop.example.com --tracking off`,
	RunE: runCookies,
}

func init() {
	cookiesCmd.Flags().StringVar(&cookiesFile, "file", "", "browser cookie export (JSON)")
	cookiesCmd.Flags().StringVar(&cookiesURL, "url", "", "page URL the cookies apply to")
	cookiesCmd.Flags().StringArrayVar(&cookiesSet, "set", nil, "force a variation, as testId=variationId (repeatable)")
	cookiesCmd.Flags().StringVar(&cookiesTracking, "tracking", "", "build the tracking toggle cookie (on or off)")
	_ = cookiesCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(cookiesCmd)
}

func runCookies(cmd *cobra.Command, args []string) error {
	host, err := hostOf(cookiesURL)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if cookiesFile != "" {
		f, err := os.Open(cookiesFile)
		if err != nil {
			return fmt.Errorf("failed to open cookie export: %w", err)
		}
		defer f.Close()

		all, err := cookies.LoadExport(f)
		if err != nil {
			return err
		}
		printAssignments(out, all, host)
	}

	now := time.Now()
	for _, spec := range cookiesSet {
		testID, variationID, err := parseAssignment(spec)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Set-Cookie: %s\n", cookies.NewAssignment(testID, variationID, host, now).String())
	}

	switch cookiesTracking {
	case "":
	case "on", "off":
		fmt.Fprintf(out, "Set-Cookie: %s\n", cookies.TrackingToggle(cookiesTracking == "off", host, now).String())
	default:
		return fmt.Errorf("invalid --tracking %q: must be 'on' or 'off'", cookiesTracking)
	}

	if cookiesFile == "" && len(cookiesSet) == 0 && cookiesTracking == "" {
		return errors.New("nothing to do: pass --file, --set or --tracking")
	}
	return nil
}

func hostOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid url %q", raw)
	}
	return u.Hostname(), nil
}

// parseAssignment parses "222=2".
func parseAssignment(spec string) (string, int64, error) {
	testID, variation, ok := strings.Cut(spec, "=")
	if !ok || testID == "" {
		return "", 0, fmt.Errorf("invalid --set %q: want testId=variationId", spec)
	}
	if _, err := strconv.ParseInt(testID, 10, 64); err != nil {
		return "", 0, fmt.Errorf("invalid test id in %q", spec)
	}
	variationID, err := strconv.ParseInt(variation, 10, 64)
	if err != nil || variationID <= 0 {
		return "", 0, fmt.Errorf("invalid variation id in %q", spec)
	}
	return testID, variationID, nil
}

func printAssignments(out io.Writer, all []cookies.Cookie, host string) {
	active := cookies.Active(all, host)
	metadata := cookies.Metadata(all, host)

	fmt.Fprintf(out, "Host: %s\n", host)
	fmt.Fprintf(out, "Assignment cookies (all domains): %d\n", cookies.BadgeCount(all))
	if cookies.TrackingDisabled(all, host) {
		fmt.Fprintln(out, "Tracking: disabled")
	} else {
		fmt.Fprintln(out, "Tracking: enabled")
	}
	fmt.Fprintln(out)

	if len(active) == 0 {
		fmt.Fprintln(out, "No active tests on this page.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEST\tVARIATION\tCOOKIE\tMETADATA\tREPORT")
	for _, a := range active {
		cookie := a.Cookie
		if a.Debug {
			cookie += " (debug)"
		}
		meta := "-"
		if _, ok := metadata[a.TestID]; ok {
			meta = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.TestID, a.Variation, cookie, meta, a.ReportURL())
	}
	w.Flush()
}
