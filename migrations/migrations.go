// Package migrations embeds the goose SQL migration set so cmd/geneingestd
// can run them against a fresh database without shipping the .sql files
// separately from the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
