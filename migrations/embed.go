// Package migrations bundles the SQL schema applied at startup.
package migrations

import "embed"

// FS holds every forward migration, applied in name order by database.Migrate.
//
//go:embed *.up.sql
var FS embed.FS
