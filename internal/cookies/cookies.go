// Package cookies reads and builds the browser cookies VWO uses to pin a
// visitor to a variation.
package cookies

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	AssignmentPrefix      = "_vis_opt_exp_"
	DebugAssignmentPrefix = "debug_vis_opt_exp_"
	MetadataPrefix        = "_vis_opt_test_"
	DisableCookie         = "_vwo_disable"

	maxAge = 365 * 24 * time.Hour
)

// Cookie is a stored browser cookie, as found in a browser cookie export.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}

// Assignment is the variation a visitor is bucketed into for one test.
type Assignment struct {
	TestID    string `json:"testId"`
	Variation string `json:"variation"`
	Cookie    string `json:"cookie"`
	Debug     bool   `json:"debug,omitempty"`
}

// ReportURL links to the campaign report in the VWO app.
func (a Assignment) ReportURL() string {
	return fmt.Sprintf("https://app.vwo.com/#/test/%s/report", a.TestID)
}

// TestID extracts the test id from an assignment cookie name. Suffixes
// after the id (e.g. _vis_opt_exp_12_combi) are ignored.
func TestID(name string) (id string, debug bool, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(name, AssignmentPrefix):
		rest = strings.TrimPrefix(name, AssignmentPrefix)
	case strings.HasPrefix(name, DebugAssignmentPrefix):
		rest = strings.TrimPrefix(name, DebugAssignmentPrefix)
		debug = true
	default:
		return "", false, false
	}
	id, _, _ = strings.Cut(rest, "_")
	if id == "" {
		return "", false, false
	}
	return id, debug, true
}

// MatchesDomain reports whether a cookie set for cookieDomain is visible
// on host.
func MatchesDomain(cookieDomain, host string) bool {
	cookieDomain = strings.ToLower(cookieDomain)
	host = strings.ToLower(host)
	if cookieDomain == host || cookieDomain == "."+host {
		return true
	}
	if !strings.HasPrefix(cookieDomain, ".") {
		cookieDomain = "." + cookieDomain
	}
	return strings.HasSuffix(host, cookieDomain)
}

// Active returns one assignment per test id visible on host. When a test
// has several cookies the last one wins. Results are ordered by test id.
func Active(cookies []Cookie, host string) []Assignment {
	byTest := map[string]Assignment{}
	for _, c := range cookies {
		if !MatchesDomain(c.Domain, host) {
			continue
		}
		id, debug, ok := TestID(c.Name)
		if !ok {
			continue
		}
		byTest[id] = Assignment{TestID: id, Variation: c.Value, Cookie: c.Name, Debug: debug}
	}

	out := make([]Assignment, 0, len(byTest))
	for _, a := range byTest {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Assignment) int {
		ai, aerr := strconv.ParseInt(a.TestID, 10, 64)
		bi, berr := strconv.ParseInt(b.TestID, 10, 64)
		if aerr == nil && berr == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		}
		return strings.Compare(a.TestID, b.TestID)
	})
	return out
}

// BadgeCount counts assignment cookies across all domains.
func BadgeCount(cookies []Cookie) int {
	n := 0
	for _, c := range cookies {
		if strings.HasPrefix(c.Name, AssignmentPrefix) {
			n++
		}
	}
	return n
}

// TrackingDisabled reports whether _vwo_disable=1 is visible on host.
func TrackingDisabled(cookies []Cookie, host string) bool {
	for _, c := range cookies {
		if c.Name == DisableCookie && MatchesDomain(c.Domain, host) {
			return c.Value == "1"
		}
	}
	return false
}

// Metadata returns the raw _vis_opt_test_{id} values visible on host,
// keyed by test id.
func Metadata(cookies []Cookie, host string) map[string]string {
	out := map[string]string{}
	for _, c := range cookies {
		if !strings.HasPrefix(c.Name, MetadataPrefix) || !MatchesDomain(c.Domain, host) {
			continue
		}
		id, _, _ := strings.Cut(strings.TrimPrefix(c.Name, MetadataPrefix), "_")
		if id != "" {
			out[id] = c.Value
		}
	}
	return out
}

// NewAssignment builds the cookie that forces variationID for testID.
func NewAssignment(testID string, variationID int64, domain string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:    AssignmentPrefix + testID,
		Value:   strconv.FormatInt(variationID, 10),
		Domain:  domain,
		Path:    "/",
		Expires: now.Add(maxAge),
	}
}

// TrackingToggle builds the _vwo_disable cookie.
func TrackingToggle(disabled bool, domain string, now time.Time) *http.Cookie {
	value := "0"
	if disabled {
		value = "1"
	}
	return &http.Cookie{
		Name:    DisableCookie,
		Value:   value,
		Domain:  domain,
		Path:    "/",
		Expires: now.Add(maxAge),
	}
}

// LoadExport decodes a JSON array of cookies.
func LoadExport(r io.Reader) ([]Cookie, error) {
	var cookies []Cookie
	if err := json.NewDecoder(r).Decode(&cookies); err != nil {
		return nil, fmt.Errorf("failed to decode cookie export: %w", err)
	}
	return cookies, nil
}
