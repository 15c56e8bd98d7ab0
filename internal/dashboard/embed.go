// Package dashboard embeds the HTML templates and stylesheet served by the
// dashboard pages.
package dashboard

import "embed"

//go:embed templates/*.html
var Templates embed.FS

//go:embed assets/*
var Assets embed.FS
