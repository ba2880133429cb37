package database

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// backupTables lists every table CreateBackup dumps: the component
// tables plus drawings.
var backupTables = []string{
	"products", "aperture_shapes", "apertures", "materials", "material_prices",
	"backing_strips", "side_irons", "side_iron_prices", "machines",
	"machine_decks", "extra_prices", "labour_times", "powder_coating_prices",
	"drawings",
}

// CreateBackup dumps every known table to a timestamped SQL file under
// dir. It returns the written file's path so the caller can report it
// back to whichever connection requested the backup.
func (s *Store) CreateBackup(ctx context.Context, dir string, now time.Time) (string, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("database: backup mkdir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("backup-%s.sql", now.UTC().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("database: backup create: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, table := range backupTables {
		if err := dumpTable(ctx, db, w, table); err != nil {
			return "", fmt.Errorf("database: backup %s: %w", table, err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("database: backup flush: %w", err)
	}
	return path, nil
}

// dumpTable writes one table's rows as INSERT statements, column values
// quoted with fmt's %v and a best-effort escape of single quotes. This is
// a plain dump for disaster recovery, not a general-purpose SQL
// generator: it assumes the deployment's Postgres accepts the resulting
// statements verbatim.
func dumpTable(ctx context.Context, db *sql.DB, w *bufio.Writer, table string) error {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	colList := strings.Join(cols, ", ")

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		parts := make([]string, len(cols))
		for i, v := range vals {
			parts[i] = sqlLiteral(v)
		}
		fmt.Fprintf(w, "INSERT INTO %s (%s) VALUES (%s);\n", table, colList, strings.Join(parts, ", "))
	}
	return rows.Err()
}

// sqlLiteral renders v as a Postgres literal suitable for an INSERT
// statement produced by dumpTable.
func sqlLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return "'" + strings.ReplaceAll(string(t), "'", "''") + "'"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", t)
	}
}
