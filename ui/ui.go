//go:build ui

// Package ui carries the bundled menu frontend. Build with -tags ui after
// placing the built assets in ui/dist.
package ui

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var assets embed.FS

// Frontend returns the bundled frontend rooted at its index.html.
func Frontend() (fs.FS, error) {
	return fs.Sub(assets, "dist")
}
