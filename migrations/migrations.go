// Package migrations embeds the SQL schema and applies it in file name order.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Files lists the embedded migration file names in execution order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Apply executes every migration. All statements use IF NOT EXISTS, so
// applying twice is harmless.
func Apply(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	names, err := Files()
	if err != nil {
		return err
	}

	for _, name := range names {
		migrationSQL, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		if _, err := db.ExecContext(ctx, string(migrationSQL)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}

		if logger != nil {
			logger.Info("Migration applied", "file", name)
		}
	}

	return nil
}
