// Package migrations embeds the goose SQL migrations for every service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
