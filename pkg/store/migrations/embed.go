// Package migrations embeds the SQL migration set applied by pkg/store at
// startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
