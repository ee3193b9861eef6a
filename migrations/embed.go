// Package migrations embeds the PostgreSQL schema so it can be applied at
// startup or by `menusync migrate`, independent of the working directory.
package migrations

import "embed"

// FS holds every .sql file in this directory, applied in name order.
//
//go:embed *.sql
var FS embed.FS
