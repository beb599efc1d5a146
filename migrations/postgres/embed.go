// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contains the postgres migrations, applied in filename order.
// Files come in *_up.sql / *_down.sql pairs.
//
//go:embed *.sql
var FS embed.FS
