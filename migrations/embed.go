// Package migrations carries the schema as golang-migrate files so binaries
// can migrate without a checkout next to them.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
