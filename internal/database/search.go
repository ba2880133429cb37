package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ocx/drawserver/internal/search"
)

// SchemaMaxima runs the MAX(...) queries a search response's compression
// schema is computed from, so the bit widths baked into the schema always
// cover the current data regardless of what query text a given search
// used.
func (s *Store) SchemaMaxima(ctx context.Context) (search.SchemaMaxima, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return search.SchemaMaxima{}, err
	}

	var m search.SchemaMaxima
	var maxMatID, maxMaterialHandle, maxApertureHandle, maxDrawingNumberLen sql.NullInt64
	var maxWidth, maxLength, maxLapSize sql.NullFloat64

	err = db.QueryRowContext(ctx, `SELECT MAX(id) FROM products`).Scan(&maxMatID)
	if err != nil {
		return m, fmt.Errorf("database: max product id: %w", err)
	}
	err = db.QueryRowContext(ctx, `SELECT MAX(width), MAX(length) FROM drawing_dimensions`).Scan(&maxWidth, &maxLength)
	if err != nil {
		return m, fmt.Errorf("database: max dimensions: %w", err)
	}
	err = db.QueryRowContext(ctx, `SELECT MAX(id) FROM materials`).Scan(&maxMaterialHandle)
	if err != nil {
		return m, fmt.Errorf("database: max material id: %w", err)
	}
	err = db.QueryRowContext(ctx, `SELECT MAX(lap_size) FROM drawing_dimensions`).Scan(&maxLapSize)
	if err != nil {
		return m, fmt.Errorf("database: max lap size: %w", err)
	}
	err = db.QueryRowContext(ctx, `SELECT MAX(id) FROM apertures`).Scan(&maxApertureHandle)
	if err != nil {
		return m, fmt.Errorf("database: max aperture id: %w", err)
	}
	err = db.QueryRowContext(ctx, `SELECT MAX(LENGTH(drawing_number)) FROM drawings`).Scan(&maxDrawingNumberLen)
	if err != nil {
		return m, fmt.Errorf("database: max drawing number length: %w", err)
	}

	if maxMatID.Valid {
		m.MaxMatID = uint32(maxMatID.Int64)
	}
	if maxWidth.Valid {
		m.MaxWidth = float32(maxWidth.Float64)
	}
	if maxLength.Valid {
		m.MaxLength = float32(maxLength.Float64)
	}
	if maxMaterialHandle.Valid {
		m.MaxMaterialHandle = uint32(maxMaterialHandle.Int64)
	}
	if maxLapSize.Valid {
		m.MaxLapSize = float32(maxLapSize.Float64)
	}
	if maxApertureHandle.Valid {
		m.MaxApertureHandle = uint32(maxApertureHandle.Int64)
	}
	if maxDrawingNumberLen.Valid {
		m.MaxDrawingNumberLength = uint32(maxDrawingNumberLen.Int64)
	}

	// Bar spacing and extra-aperture counts are per-drawing collections
	// rather than simple column maxima; ExecuteSearchQuery computes them
	// while building the summary rows and folds the running max in
	// afterwards.
	return m, nil
}

// searchRow is one drawing's worth of search-summary source data, before
// schema-derived bit widths are known.
type searchRow struct {
	drawingNumber  string
	matID          uint32
	width, length  float32
	materialHandle uint32
	lapSize        float32
	apertureHandle uint32
	barSpacings    []float32
	extraApertures []uint32
}

// ExecuteSearchQuery runs a drawing search: it filters drawings by the
// caller-supplied predicate fragment, loads each match's summary fields
// and per-drawing collections (bar spacings, extra apertures), folds the
// observed maxima into the compression schema, and returns the packed
// response body the dispatcher can send as-is.
//
// whereClause must already be a safe, parameterised SQL fragment (e.g.
// "mat_id = $1") built by the caller from validated query terms; this
// layer does not parse free-form search syntax.
func (s *Store) ExecuteSearchQuery(ctx context.Context, whereClause string, args ...any) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT d.drawing_number, d.mat_id, dd.width, dd.length, dd.material_id,
		       dd.lap_size, dd.aperture_id
		FROM drawings d
		JOIN drawing_dimensions dd ON dd.drawing_id = d.id`
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	query += " ORDER BY d.drawing_number"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database: search query: %w", err)
	}

	var results []searchRow
	for rows.Next() {
		var r searchRow
		var materialID, apertureID sql.NullInt64
		if err := rows.Scan(&r.drawingNumber, &r.matID, &r.width, &r.length, &materialID, &r.lapSize, &apertureID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("database: scan search row: %w", err)
		}
		if materialID.Valid {
			r.materialHandle = uint32(materialID.Int64)
		}
		if apertureID.Valid {
			r.apertureHandle = uint32(apertureID.Int64)
		}
		results = append(results, r)
	}
	rerr := rows.Err()
	rows.Close()
	if rerr != nil {
		return nil, rerr
	}

	maxima, err := s.SchemaMaxima(ctx)
	if err != nil {
		return nil, err
	}

	for i := range results {
		barSpacings, extraApertures, err := s.drawingCollections(ctx, results[i].drawingNumber)
		if err != nil {
			return nil, err
		}
		results[i].barSpacings = barSpacings
		results[i].extraApertures = extraApertures
		if n := uint32(len(barSpacings)); n > maxima.MaxBarSpacingCount {
			maxima.MaxBarSpacingCount = n
		}
		if n := uint32(len(extraApertures)); n > maxima.MaxExtraApertureCount {
			maxima.MaxExtraApertureCount = n
		}
		for _, bs := range barSpacings {
			if bs > maxima.MaxBarSpacing {
				maxima.MaxBarSpacing = bs
			}
		}
	}

	schema := search.NewCompressionSchema(maxima)

	w := &byteBuilder{}
	w.writeUint32(uint32(len(results)))
	for _, r := range results {
		summary := search.DrawingSummary{
			DrawingNumber:  r.drawingNumber,
			MatID:          r.matID,
			Width:          r.width,
			Length:         r.length,
			MaterialHandle: r.materialHandle,
			LapSize:        r.lapSize,
			ApertureHandle: r.apertureHandle,
			BarSpacings:    r.barSpacings,
			ExtraApertures: r.extraApertures,
		}
		w.writeBytes(schema.CompressSummary(summary))
	}

	out := append(schema.Encode(), w.bytes()...)
	return out, nil
}

// drawingCollections fetches a drawing's bar spacings and extra aperture
// ids.
func (s *Store) drawingCollections(ctx context.Context, drawingNumber string) ([]float32, []uint32, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}

	barRows, err := db.QueryContext(ctx, `
		SELECT spacing FROM drawing_bar_spacings
		WHERE drawing_number = $1 ORDER BY position`, drawingNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("database: bar spacings: %w", err)
	}
	var barSpacings []float32
	for barRows.Next() {
		var v float32
		if err := barRows.Scan(&v); err != nil {
			barRows.Close()
			return nil, nil, err
		}
		barSpacings = append(barSpacings, v)
	}
	berr := barRows.Err()
	barRows.Close()
	if berr != nil {
		return nil, nil, berr
	}

	apRows, err := db.QueryContext(ctx, `
		SELECT aperture_id FROM drawing_extra_apertures
		WHERE drawing_number = $1 ORDER BY position`, drawingNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("database: extra apertures: %w", err)
	}
	var extraApertures []uint32
	for apRows.Next() {
		var v uint32
		if err := apRows.Scan(&v); err != nil {
			apRows.Close()
			return nil, nil, err
		}
		extraApertures = append(extraApertures, v)
	}
	aerr := apRows.Err()
	apRows.Close()
	if aerr != nil {
		return nil, nil, aerr
	}

	return barSpacings, extraApertures, nil
}

// byteBuilder is a minimal append-only buffer for the search response's
// little-endian result count and packed summaries.
type byteBuilder struct {
	buf []byte
}

func (b *byteBuilder) writeUint32(v uint32) {
	b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (b *byteBuilder) writeBytes(p []byte) {
	b.buf = append(b.buf, p...)
}

func (b *byteBuilder) bytes() []byte {
	return b.buf
}
