// Package db embeds the SQL schema migrations so binaries and tests apply the
// same files.
package db

import "embed"

// Migrations holds goose-formatted SQL files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that goose reads.
const MigrationsDir = "migrations"
