//go:build !ui

// Package ui carries the bundled menu frontend. Build with -tags ui after
// placing the built assets in ui/dist.
package ui

import "io/fs"

// Frontend returns nil without the ui build tag; only MENUSYNC_STATIC_DIR
// can then supply a frontend.
func Frontend() (fs.FS, error) {
	return nil, nil
}
