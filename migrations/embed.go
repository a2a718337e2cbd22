// Package migrations holds the reference schema in goose format.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
