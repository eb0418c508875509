// Package db holds the SQL migrations for the price store.
package db

import "embed"

// Migrations contains every migration under migrations/, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS
