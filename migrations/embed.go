// Package migrations embeds the Postgres run index schema.
package migrations

import "embed"

// FS holds the .sql files of this directory, applied in name order.
//
//go:embed *.sql
var FS embed.FS
