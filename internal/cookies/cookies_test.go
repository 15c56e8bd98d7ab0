package cookies_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/vwo-pulse/internal/cookies"
)

func TestMatchesDomain(t *testing.T) {
	tests := []struct {
		cookie, host string
		want         bool
	}{
		{"shop.example.com", "shop.example.com", true},
		{".shop.example.com", "shop.example.com", true},
		{".example.com", "shop.example.com", true},
		{"example.com", "shop.example.com", true},
		{"EXAMPLE.com", "Shop.Example.com", true},
		{"other.com", "shop.example.com", false},
		{"ample.com", "shop.example.com", false},
		{"shop.example.com", "example.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cookies.MatchesDomain(tt.cookie, tt.host), "%s on %s", tt.cookie, tt.host)
	}
}

func TestTestID(t *testing.T) {
	id, debug, ok := cookies.TestID("_vis_opt_exp_123_combi")
	assert.True(t, ok)
	assert.False(t, debug)
	assert.Equal(t, "123", id)

	id, debug, ok = cookies.TestID("debug_vis_opt_exp_77")
	assert.True(t, ok)
	assert.True(t, debug)
	assert.Equal(t, "77", id)

	_, _, ok = cookies.TestID("_vis_opt_test_9")
	assert.False(t, ok)
	_, _, ok = cookies.TestID("_vis_opt_exp_")
	assert.False(t, ok)
}

func TestActive_UniquePerTestSorted(t *testing.T) {
	jar := []cookies.Cookie{
		{Name: "_vis_opt_exp_20_combi", Value: "1", Domain: ".example.com"},
		{Name: "_vis_opt_exp_3", Value: "2", Domain: "shop.example.com"},
		{Name: "_vis_opt_exp_20", Value: "3", Domain: ".example.com"},
		{Name: "debug_vis_opt_exp_100", Value: "1", Domain: ".example.com"},
		{Name: "_vis_opt_exp_5", Value: "1", Domain: "other.com"},
		{Name: "_ga", Value: "x", Domain: ".example.com"},
	}

	active := cookies.Active(jar, "shop.example.com")
	require.Len(t, active, 3)
	assert.Equal(t, "3", active[0].TestID)
	assert.Equal(t, "20", active[1].TestID)
	assert.Equal(t, "3", active[1].Variation, "last cookie for a test wins")
	assert.Equal(t, "100", active[2].TestID)
	assert.True(t, active[2].Debug)
	assert.Equal(t, "https://app.vwo.com/#/test/100/report", active[2].ReportURL())
}

func TestBadgeCountAndTracking(t *testing.T) {
	jar := []cookies.Cookie{
		{Name: "_vis_opt_exp_1", Domain: "a.com"},
		{Name: "_vis_opt_exp_2", Domain: "b.com"},
		{Name: "debug_vis_opt_exp_3", Domain: "a.com"},
		{Name: cookies.DisableCookie, Value: "1", Domain: ".a.com"},
	}
	assert.Equal(t, 2, cookies.BadgeCount(jar))
	assert.True(t, cookies.TrackingDisabled(jar, "www.a.com"))
	assert.False(t, cookies.TrackingDisabled(jar, "b.com"))
}

func TestMetadata(t *testing.T) {
	jar := []cookies.Cookie{
		{Name: "_vis_opt_test_12", Value: `{"v":1}`, Domain: ".a.com"},
		{Name: "_vis_opt_test_13", Value: "x", Domain: "b.com"},
	}
	assert.Equal(t, map[string]string{"12": `{"v":1}`}, cookies.Metadata(jar, "a.com"))
}

func TestBuilders(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	c := cookies.NewAssignment("42", 2, ".example.com", now)
	assert.Equal(t, "_vis_opt_exp_42", c.Name)
	assert.Equal(t, "2", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, now.AddDate(1, 0, 0), c.Expires)

	off := cookies.TrackingToggle(true, "example.com", now)
	assert.Equal(t, "1", off.Value)
	on := cookies.TrackingToggle(false, "example.com", now)
	assert.Equal(t, "0", on.Value)
}

func TestLoadExport(t *testing.T) {
	jar, err := cookies.LoadExport(strings.NewReader(`[{"name":"_vis_opt_exp_1","value":"2","domain":".a.com","path":"/"}]`))
	require.NoError(t, err)
	require.Len(t, jar, 1)
	assert.Equal(t, "_vis_opt_exp_1", jar[0].Name)

	_, err = cookies.LoadExport(strings.NewReader(`{`))
	assert.Error(t, err)
}
