package db

import (
	"embed"
	"fmt"
	"io/fs"
)

// EmbedMigrations contains the embedded SQL migration files.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS

// MigrationsFS returns the migration files rooted at the migrations directory.
func MigrationsFS() (fs.FS, error) {
	sub, err := fs.Sub(EmbedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	return sub, nil
}
