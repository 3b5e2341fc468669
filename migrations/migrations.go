// Package migrations embeds the per-service SQL migrations. Each service owns
// one directory and one Postgres schema.
package migrations

import "embed"

//go:embed events/*.sql certificates/*.sql notifications/*.sql logs/*.sql
var FS embed.FS
