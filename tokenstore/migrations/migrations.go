// Package migrations embeds the PostgreSQL schema for tokenstore.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
