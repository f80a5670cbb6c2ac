// Package migrations embeds the goose schema files applied at start-up and
// by the Postgres test containers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
