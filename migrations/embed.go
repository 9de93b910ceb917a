// Package migrations embeds the PostgreSQL schema migrations applied by
// "medibook-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
