// Package migrations embeds per-driver schema migration files. Each driver
// keeps its own directory; files are applied in filename order.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
