package vwo

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Remote campaign statuses. PAUSED and DRAFT are the dashboard's bucket
// names; STOPPED and NOT_STARTED are what the API reports for them on
// older campaigns.
const (
	StatusRunning    = "RUNNING"
	StatusPaused     = "PAUSED"
	StatusStopped    = "STOPPED"
	StatusDraft      = "DRAFT"
	StatusNotStarted = "NOT_STARTED"
)

// Campaign types.
const (
	TypeAB           = "ab"
	TypeMultivariate = "multivariate"
	TypeSplitURL     = "split_url"
)

// DefaultTypes is the allow-list used when a caller supplies none.
var DefaultTypes = []string{TypeAB, TypeMultivariate, TypeSplitURL}

type Campaign struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Status     string      `json:"status"`
	Type       string      `json:"type"`
	CreatedOn  int64       `json:"createdOn"`
	Variations []Variation `json:"variations,omitempty"`
	Goals      []Goal      `json:"goals,omitempty"`
}

type Variation struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsControl bool   `json:"isControl"`
}

type Goal struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsPrimary bool   `json:"isPrimary"`
	// AggregatedData is keyed by variation id. nil means the API sent no
	// aggregated data for the goal.
	AggregatedData map[string]VariationStats `json:"aggregatedData"`
	DecisionStats  *DecisionStats            `json:"decisionStats,omitempty"`
}

type VariationStats struct {
	VisitorCount    int64   `json:"visitorCount"`
	ConversionCount int64   `json:"conversionCount"`
	TotalRevenue    float64 `json:"totalRevenue"`
}

type DecisionStats struct {
	// MinimumDetectableEffect is a percentage, e.g. 5 for 5%.
	MinimumDetectableEffect float64 `json:"minimumDetectableEffect"`
}

// PrimaryGoal returns the goal flagged primary, else the first goal, else nil.
func (c *Campaign) PrimaryGoal() *Goal {
	for i := range c.Goals {
		if c.Goals[i].IsPrimary {
			return &c.Goals[i]
		}
	}
	if len(c.Goals) > 0 {
		return &c.Goals[0]
	}
	return nil
}

// Control returns the control variation, or nil.
func (c *Campaign) Control() *Variation {
	for i := range c.Variations {
		if c.Variations[i].IsControl {
			return &c.Variations[i]
		}
	}
	return nil
}

// Stats returns the aggregated counters for a variation id.
func (g *Goal) Stats(variationID int64) (VariationStats, bool) {
	s, ok := g.AggregatedData[strconv.FormatInt(variationID, 10)]
	return s, ok
}

// Filter selects campaigns by status bucket and type.
type Filter struct {
	Status string
	Types  []string
}

// Matches applies the status aliasing (PAUSED also matches STOPPED, DRAFT
// also matches NOT_STARTED) and the type allow-list.
func (f Filter) Matches(c Campaign) bool {
	if f.Status != "" && !StatusMatches(f.Status, c.Status) {
		return false
	}
	types := f.Types
	if len(types) == 0 {
		types = DefaultTypes
	}
	for _, t := range types {
		if t == c.Type {
			return true
		}
	}
	return false
}

// StatusMatches reports whether a remote status belongs to a bucket.
// The aliasing is one-directional: a STOPPED filter does not match PAUSED.
func StatusMatches(bucket, remote string) bool {
	switch {
	case remote == bucket:
		return true
	case bucket == StatusPaused && remote == StatusStopped:
		return true
	case bucket == StatusDraft && remote == StatusNotStarted:
		return true
	}
	return false
}

// ParseStatus normalizes a bucket name. Only RUNNING, DRAFT and PAUSED are
// accepted; an empty string means RUNNING.
func ParseStatus(s string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", StatusRunning:
		return StatusRunning, true
	case StatusDraft:
		return StatusDraft, true
	case StatusPaused:
		return StatusPaused, true
	}
	return "", false
}

type listEnvelope struct {
	Data *struct {
		PartialCollection []Campaign `json:"partialCollection"`
		TotalCount        int        `json:"totalCount"`
	} `json:"_data"`
}

type campaignEnvelope struct {
	Data *Campaign `json:"_data"`
}

// Settings is the object embedded in the settings.js JSONP response.
type Settings struct {
	RawCampaigns map[string]SettingsCampaign `json:"campaigns"`
	DataStore    *struct {
		Campaigns map[string]SettingsCampaign `json:"campaigns"`
	} `json:"dataStore"`
}

// Campaigns returns campaigns from the top level or from dataStore.
func (s *Settings) Campaigns() map[string]SettingsCampaign {
	if len(s.RawCampaigns) > 0 {
		return s.RawCampaigns
	}
	if s.DataStore != nil {
		return s.DataStore.Campaigns
	}
	return nil
}

type SettingsCampaign struct {
	Name       looseString        `json:"name"`
	Status     looseString        `json:"status"`
	Type       looseString        `json:"type"`
	Variations SettingsVariations `json:"variations"`
}

type SettingsVariation struct {
	ID   looseString `json:"id"`
	Name looseString `json:"name"`
}

// SettingsVariations accepts either an object keyed by variation id or an
// array (keyed by the element's id, or its index when it has none).
type SettingsVariations map[string]SettingsVariation

func (v *SettingsVariations) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	out := SettingsVariations{}
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
	case b[0] == '[':
		var list []SettingsVariation
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		for i, item := range list {
			key := string(item.ID)
			if key == "" {
				key = strconv.Itoa(i)
			}
			out[key] = item
		}
	default:
		var m map[string]SettingsVariation
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		for k, item := range m {
			out[k] = item
		}
	}
	*v = out
	return nil
}

// looseString decodes JSON strings, numbers and booleans as text.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = looseString(str)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	*s = looseString(b)
	return nil
}

func (s looseString) String() string { return string(s) }
