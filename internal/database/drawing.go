package database

import (
	"context"
	"database/sql"
	"fmt"
)

// DrawingExistsResponse splits "not found" from "query failed" rather
// than collapsing both into a single boolean, which would risk masking a
// connection error as a fresh drawing number.
type DrawingExistsResponse int

const (
	DrawingNotExists DrawingExistsResponse = iota
	DrawingExists
)

// DrawingExists checks drawings for drawingNumber. The drawing's own
// column schema is a client concern; this layer only needs to know
// whether a number is taken.
func (s *Store) DrawingExists(ctx context.Context, drawingNumber string) (DrawingExistsResponse, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return DrawingNotExists, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drawings WHERE drawing_number = $1`, drawingNumber).Scan(&n)
	if err != nil {
		return DrawingNotExists, fmt.Errorf("database: drawing exists: %w", err)
	}
	if n > 0 {
		return DrawingExists, nil
	}
	return DrawingNotExists, nil
}

// InsertDrawing writes or overwrites a drawing row. data is the
// caller-supplied opaque drawing payload; this layer only contracts on
// the drawing number used for uniqueness and the next-drawing-number
// hints.
func (s *Store) InsertDrawing(ctx context.Context, drawingNumber string, data []byte, force bool) error {
	db, err := s.Conn(ctx)
	if err != nil {
		return err
	}
	var sqlErr error
	if force {
		_, sqlErr = db.ExecContext(ctx, `
			INSERT INTO drawings (drawing_number, data, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (drawing_number) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
			drawingNumber, data)
	} else {
		_, sqlErr = db.ExecContext(ctx, `
			INSERT INTO drawings (drawing_number, data, updated_at) VALUES ($1, $2, now())`,
			drawingNumber, data)
	}
	if sqlErr != nil {
		return fmt.Errorf("database: insert drawing: %w", sqlErr)
	}
	return nil
}

// DrawingDetails fetches the opaque payload for drawingNumber. found is
// false (with a nil error) when no such drawing exists; a missing drawing
// is a warning for the client, not a hard error.
func (s *Store) DrawingDetails(ctx context.Context, drawingNumber string) (data []byte, found bool, err error) {
	db, connErr := s.Conn(ctx)
	if connErr != nil {
		return nil, false, connErr
	}
	row := db.QueryRowContext(ctx, `SELECT data FROM drawings WHERE drawing_number = $1`, drawingNumber)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("database: drawing details: %w", err)
	}
	return data, true, nil
}

// NextAutomaticDrawingNumber computes the next system-assigned drawing
// number: the highest purely-numeric drawing number in use, incremented
// by one.
func (s *Store) NextAutomaticDrawingNumber(ctx context.Context) (string, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return "", err
	}
	var max sql.NullInt64
	err = db.QueryRowContext(ctx, `
		SELECT MAX(drawing_number::bigint) FROM drawings WHERE drawing_number ~ '^[0-9]+$'`).Scan(&max)
	if err != nil {
		return "", fmt.Errorf("database: next automatic drawing number: %w", err)
	}
	next := int64(1)
	if max.Valid {
		next = max.Int64 + 1
	}
	return fmt.Sprintf("%d", next), nil
}

// NextManualDrawingNumber computes the next manually-prefixed drawing
// number hint: the highest "M"-prefixed number in use, incremented by
// one.
func (s *Store) NextManualDrawingNumber(ctx context.Context) (string, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return "", err
	}
	var max sql.NullInt64
	err = db.QueryRowContext(ctx, `
		SELECT MAX(SUBSTRING(drawing_number FROM 2)::bigint)
		FROM drawings WHERE drawing_number ~ '^M[0-9]+$'`).Scan(&max)
	if err != nil {
		return "", fmt.Errorf("database: next manual drawing number: %w", err)
	}
	next := int64(1)
	if max.Valid {
		next = max.Int64 + 1
	}
	return fmt.Sprintf("M%d", next), nil
}

// InsertComponent writes a new row for a generically-typed component and
// returns its database id. Like drawings, the specific table schema per
// kind is a thin pass-through: the caller names the table and supplies
// already-marshalled column values.
func (s *Store) InsertComponent(ctx context.Context, table string, columns []string, values []any) (uint32, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return 0, err
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table, joinColumns(columns), joinColumns(placeholders))

	var id uint32
	if err := db.QueryRowContext(ctx, query, values...).Scan(&id); err != nil {
		return 0, fmt.Errorf("database: insert component into %s: %w", table, err)
	}
	return id, nil
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
