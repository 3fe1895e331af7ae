// Package migrations embeds the ledger schema.
package migrations

import "embed"

// FS holds the ledger SQL migrations.
//
//go:embed *.sql
var FS embed.FS
