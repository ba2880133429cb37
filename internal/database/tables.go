package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ocx/drawserver/internal/catalog"
)

// assembleTable writes the [RequestKind | count | {handle, id, ...}*]
// stream every Source*Table response shares, assigning handles densely
// from 1 in row order.
func assembleTable(kind catalog.RequestKind, n int, write func(w *catalog.Writer, handle uint32)) []byte {
	w := catalog.NewWriter()
	w.RequestKind(kind)
	w.Uint32(uint32(n))
	for h := 1; h <= n; h++ {
		write(w, uint32(h))
	}
	return w.Bytes()
}

// BuildProductTable queries the products table and serialises it into a
// Product catalog source buffer.
func (s *Store) BuildProductTable(ctx context.Context) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query products: %w", err)
	}
	defer rows.Close()

	type row struct {
		id   uint32
		name string
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.name); err != nil {
			return nil, fmt.Errorf("database: scan product: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourceProductTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.String(r.name)
	}), nil
}

// BuildApertureShapeTable queries aperture_shapes. It also returns the
// database-id to assigned-handle map the aperture builder needs to
// resolve its shape reference, since the wire format addresses shapes by
// handle rather than id.
func (s *Store) BuildApertureShapeTable(ctx context.Context) ([]byte, map[uint32]uint32, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, shape FROM aperture_shapes ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("database: query aperture_shapes: %w", err)
	}
	defer rows.Close()

	type row struct {
		id    uint32
		shape string
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.shape); err != nil {
			return nil, nil, fmt.Errorf("database: scan aperture_shape: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	idToHandle := make(map[uint32]uint32, len(items))
	for i, r := range items {
		idToHandle[r.id] = uint32(i + 1)
	}

	data := assembleTable(catalog.SourceApertureShapeTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.String(r.shape)
	})
	return data, idToHandle, nil
}

// BuildApertureTable queries apertures and resolves each row's
// aperture_shape_id against shapeIDToHandle; the caller must have built
// a current ApertureShape table first. A row with no shape id, or whose
// shape id isn't in the map, is skipped rather than written with a
// dangling handle; the skip is not logged.
func (s *Store) BuildApertureTable(ctx context.Context, shapeIDToHandle map[uint32]uint32) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, width, length, base_width, base_length, aperture_shape_id,
		       quantity, nibble_aperture_id
		FROM apertures ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query apertures: %w", err)
	}
	defer rows.Close()

	type row struct {
		id               uint32
		width, length    float32
		baseW, baseL     uint16
		shapeID          sql.NullInt64
		quantity         uint16
		nibbleApertureID sql.NullInt64
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.width, &r.length, &r.baseW, &r.baseL, &r.shapeID, &r.quantity, &r.nibbleApertureID); err != nil {
			return nil, fmt.Errorf("database: scan aperture: %w", err)
		}
		if !r.shapeID.Valid {
			continue
		}
		if _, ok := shapeIDToHandle[uint32(r.shapeID.Int64)]; !ok {
			continue
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourceApertureTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		shapeHandle := shapeIDToHandle[uint32(r.shapeID.Int64)]
		w.Uint32(h)
		w.Uint32(r.id)
		w.Float32(r.width)
		w.Float32(r.length)
		w.Uint16(r.baseW)
		w.Uint16(r.baseL)
		w.Uint32(shapeHandle)
		w.Uint16(r.quantity)
		w.Bool(r.nibbleApertureID.Valid)
		if r.nibbleApertureID.Valid {
			w.Uint32(uint32(r.nibbleApertureID.Int64))
		}
	}), nil
}

// BuildMaterialTable joins materials with material_prices, one logical
// entity per material row with its price tiers nested. It returns the
// id-to-handle map BuildBackingStripTable needs.
func (s *Store) BuildMaterialTable(ctx context.Context) ([]byte, map[uint32]uint32, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, name, hardness, thickness FROM materials ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("database: query materials: %w", err)
	}

	type price struct {
		id            uint32
		width, length float32
		amount        float32
		pricingType   uint32
	}
	type row struct {
		id                  uint32
		name                string
		hardness, thickness uint16
		prices              []price
	}
	var items []row
	idx := make(map[uint32]int)
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.name, &r.hardness, &r.thickness); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("database: scan material: %w", err)
		}
		idx[r.id] = len(items)
		items = append(items, r)
	}
	rerr := rows.Err()
	rows.Close()
	if rerr != nil {
		return nil, nil, rerr
	}

	priceRows, err := db.QueryContext(ctx, `
		SELECT id, material_id, width, length, price, pricing_type
		FROM material_prices ORDER BY material_id, width`)
	if err != nil {
		return nil, nil, fmt.Errorf("database: query material_prices: %w", err)
	}
	defer priceRows.Close()
	for priceRows.Next() {
		var priceID, materialID uint32
		var p price
		if err := priceRows.Scan(&priceID, &materialID, &p.width, &p.length, &p.amount, &p.pricingType); err != nil {
			return nil, nil, fmt.Errorf("database: scan material_price: %w", err)
		}
		p.id = priceID
		i, ok := idx[materialID]
		if !ok {
			continue
		}
		items[i].prices = append(items[i].prices, p)
	}
	if err := priceRows.Err(); err != nil {
		return nil, nil, err
	}

	idToHandle := make(map[uint32]uint32, len(items))
	for i, r := range items {
		idToHandle[r.id] = uint32(i + 1)
	}

	data := assembleTable(catalog.SourceMaterialTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.Uint16(r.hardness)
		w.Uint16(r.thickness)
		w.String(r.name)
		w.Byte(byte(len(r.prices)))
		for _, p := range r.prices {
			w.Uint32(p.id)
			w.Float32(p.width)
			w.Float32(p.length)
			w.Float32(p.amount)
			w.Uint32(p.pricingType)
		}
	})
	return data, idToHandle, nil
}

// BuildBackingStripTable queries backing_strips and resolves each row's
// material_id against materialIDToHandle, which the caller must have
// just rebuilt.
func (s *Store) BuildBackingStripTable(ctx context.Context, materialIDToHandle map[uint32]uint32) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, material_id FROM backing_strips ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query backing_strips: %w", err)
	}
	defer rows.Close()

	type row struct {
		id         uint32
		materialID sql.NullInt64
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.materialID); err != nil {
			return nil, fmt.Errorf("database: scan backing_strip: %w", err)
		}
		if !r.materialID.Valid {
			continue
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourceBackingStripsTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.Uint32(materialIDToHandle[uint32(r.materialID.Int64)])
	}), nil
}

// BuildSideIronTable queries side_irons.
func (s *Store) BuildSideIronTable(ctx context.Context) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, type, length, drawing_number, hyperlink, price, screws
		FROM side_irons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query side_irons: %w", err)
	}
	defer rows.Close()

	type row struct {
		id                       uint32
		typ                      uint8
		length                   uint16
		drawingNumber, hyperlink string
		price                    sql.NullFloat64
		screws                   sql.NullInt64
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.typ, &r.length, &r.drawingNumber, &r.hyperlink, &r.price, &r.screws); err != nil {
			return nil, fmt.Errorf("database: scan side_iron: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourceSideIronTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.Byte(r.typ)
		w.Uint16(r.length)
		w.String(r.drawingNumber)
		w.String(r.hyperlink)
		w.Bool(r.price.Valid)
		if r.price.Valid {
			w.Float32(float32(r.price.Float64))
		}
		w.Bool(r.screws.Valid)
		if r.screws.Valid {
			w.Uint32(uint32(r.screws.Int64))
		}
	}), nil
}

// BuildSideIronPriceTable queries side_iron_prices. The type tag is
// written as a 4-byte field here, unlike SideIron's 1-byte tag (see
// catalog.DecodeSideIronPrice).
func (s *Store) BuildSideIronPriceTable(ctx context.Context) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, side_iron_type, lower_length, upper_length, extra_flex, price
		FROM side_iron_prices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query side_iron_prices: %w", err)
	}
	defer rows.Close()

	type row struct {
		id                       uint32
		typ                      uint32
		lowerLength, upperLength uint32
		extraFlex                bool
		price                    float32
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.typ, &r.lowerLength, &r.upperLength, &r.extraFlex, &r.price); err != nil {
			return nil, fmt.Errorf("database: scan side_iron_price: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourceSideIronPricesTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.Uint32(r.typ)
		w.Uint32(r.lowerLength)
		w.Uint32(r.upperLength)
		w.Bool(r.extraFlex)
		w.Float32(r.price)
	}), nil
}

// BuildMachineTable queries machines.
func (s *Store) BuildMachineTable(ctx context.Context) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, manufacturer, model FROM machines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query machines: %w", err)
	}
	defer rows.Close()

	type row struct {
		id                  uint32
		manufacturer, model string
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.manufacturer, &r.model); err != nil {
			return nil, fmt.Errorf("database: scan machine: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourceMachineTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.String(r.manufacturer)
		w.String(r.model)
	}), nil
}

// BuildMachineDeckTable queries machine_decks.
func (s *Store) BuildMachineDeckTable(ctx context.Context) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, deck FROM machine_decks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query machine_decks: %w", err)
	}
	defer rows.Close()

	type row struct {
		id   uint32
		deck string
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.deck); err != nil {
			return nil, fmt.Errorf("database: scan machine_deck: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourceMachineDeckTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.String(r.deck)
	}), nil
}

// BuildExtraPriceTable queries extra_prices. Which optional column is
// serialised per row depends on the row's type tag.
func (s *Store) BuildExtraPriceTable(ctx context.Context) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, price_type, price, amount, square_metres FROM extra_prices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query extra_prices: %w", err)
	}
	defer rows.Close()

	type row struct {
		id           uint32
		priceType    uint32
		price        float32
		amount       sql.NullInt64
		squareMetres sql.NullFloat64
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.priceType, &r.price, &r.amount, &r.squareMetres); err != nil {
			return nil, fmt.Errorf("database: scan extra_price: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourceExtraPricesTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.Uint32(r.priceType)
		w.Float32(r.price)
		switch catalog.ExtraPriceType(r.priceType) {
		case catalog.SideIronNuts, catalog.SideIronScrews, catalog.ShotBlasting:
			var amount uint32
			if r.amount.Valid {
				amount = uint32(r.amount.Int64)
			}
			w.Uint32(amount)
		case catalog.TackybackGlue, catalog.Primer:
			var sqm float32
			if r.squareMetres.Valid {
				sqm = float32(r.squareMetres.Float64)
			}
			w.Float32(sqm)
		}
	}), nil
}

// BuildLabourTimeTable queries labour_times. The job title is
// length-prefixed with an 8-byte count on the wire, unlike every other
// string field (catalog.DecodeLabourTime).
func (s *Store) BuildLabourTimeTable(ctx context.Context) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, job, minutes FROM labour_times ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query labour_times: %w", err)
	}
	defer rows.Close()

	type row struct {
		id      uint32
		job     string
		minutes uint32
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.job, &r.minutes); err != nil {
			return nil, fmt.Errorf("database: scan labour_time: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourceLabourTimesTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.Uint64(uint64(len(r.job)))
		w.Raw([]byte(r.job))
		w.Uint32(r.minutes)
	}), nil
}

// BuildPowderCoatingTable queries powder_coating_prices.
func (s *Store) BuildPowderCoatingTable(ctx context.Context) ([]byte, error) {
	db, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, hook_price, strap_price FROM powder_coating_prices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: query powder_coating_prices: %w", err)
	}
	defer rows.Close()

	type row struct {
		id                    uint32
		hookPrice, strapPrice float32
	}
	var items []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.hookPrice, &r.strapPrice); err != nil {
			return nil, fmt.Errorf("database: scan powder_coating_price: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTable(catalog.SourcePowderCoatingTable, len(items), func(w *catalog.Writer, h uint32) {
		r := items[h-1]
		w.Uint32(h)
		w.Uint32(r.id)
		w.Float32(r.hookPrice)
		w.Float32(r.strapPrice)
	}), nil
}
