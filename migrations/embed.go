// Package migrations embeds the goose migrations for the SQL storage
// backends. Each dialect has its own directory.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
