package migrations

import "embed"

// FS contains embedded SQLite migrations for calendar storage.
//
//go:embed *.sql
var FS embed.FS
