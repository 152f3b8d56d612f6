// Package migrations embeds the Silver warehouse schema so it ships
// inside the binary rather than depending on an external migration
// directory at deploy time.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS

// Dir is the goose migration directory within FS.
const Dir = "sql"
