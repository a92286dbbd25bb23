// Package migrations embeds the forward SQL migrations applied by the server
// at startup and by integration tests.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
