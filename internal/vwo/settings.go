package vwo

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// SettingsMarker precedes the settings object in settings.js.
const SettingsMarker = "var allSettings=(function(){return"

// SettingsParams are the query parameters of the settings.js request.
type SettingsParams struct {
	SettingsType int
	Timestamp    time.Time
	DeviceType   string
	CountryCode  string
}

func (p SettingsParams) withDefaults() SettingsParams {
	if p.SettingsType == 0 {
		p.SettingsType = 4
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	if p.DeviceType == "" {
		p.DeviceType = "desktop"
	}
	if p.CountryCode == "" {
		p.CountryCode = "US"
	}
	return p
}

// FetchSettings downloads settings.js and decodes the embedded object. The
// object is located with ExtractObject and must be valid JSON; it is never
// evaluated.
func (c *Client) FetchSettings(ctx context.Context, params SettingsParams) (*Settings, error) {
	params = params.withDefaults()

	q := url.Values{}
	q.Set("a", c.accountID)
	q.Set("settings_type", strconv.Itoa(params.SettingsType))
	q.Set("ts", strconv.FormatInt(params.Timestamp.Unix(), 10))
	q.Set("dt", params.DeviceType)
	q.Set("cc", params.CountryCode)

	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	h.Set("Accept", "application/json")

	body, err := c.get(ctx, "settings", c.settingsURL+"?"+q.Encode(), h)
	if err != nil {
		return nil, fmt.Errorf("fetch settings: %w", err)
	}
	return ParseSettings(body)
}

// ParseSettings extracts and decodes the settings object from a settings.js body.
func ParseSettings(body []byte) (*Settings, error) {
	obj, err := ExtractObject(body, SettingsMarker)
	if err != nil {
		return nil, err
	}

	var s Settings
	if err := json.Unmarshal(obj, &s); err != nil {
		return nil, fmt.Errorf("settings object is not valid JSON: %w", err)
	}
	return &s, nil
}

// ExtractObject returns the object literal that follows marker in body.
// String literals (single or double quoted, with backslash escapes) are
// skipped so braces inside them do not count.
func ExtractObject(body []byte, marker string) ([]byte, error) {
	idx := bytes.Index(body, []byte(marker))
	if idx < 0 {
		return nil, ErrSettingsMarker
	}

	start := idx + len(marker)
	for start < len(body) && isSpace(body[start]) {
		start++
	}
	if start >= len(body) || body[start] != '{' {
		return nil, ErrNoObject
	}

	var (
		depth    int
		inString bool
		quote    byte
		escaped  bool
	)
	for i := start; i < len(body); i++ {
		ch := body[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				inString = false
			}
			continue
		}

		switch ch {
		case '"', '\'':
			inString = true
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return body[start : i+1], nil
			}
		}
	}
	return nil, ErrUnbalanced
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
