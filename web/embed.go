// Package web embeds the dashboard templates and static assets.
package web

import "embed"

// TemplatesFS holds the dashboard page and its partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the autosubmit script.
//
//go:embed static/*
var StaticFS embed.FS
