// Package migrations embeds the goose migrations of the SQLite corpus store.
package migrations

import "embed"

// FS holds the *.sql migration files at its root.
//
//go:embed *.sql
var FS embed.FS
