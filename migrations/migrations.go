// Package migrations holds the goose SQL migrations of the chat database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
