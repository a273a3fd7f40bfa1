// Package migrations embeds the PostgreSQL schema so the migrate binary ships without a source tree.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
