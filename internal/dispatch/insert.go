package dispatch

import (
	"context"
	"fmt"

	"github.com/ocx/drawserver/internal/catalog"
)

// insertComponent decodes one AddComponent payload using the same
// Decode* function its matching Source*Table response would use, then
// writes the resulting entity's columns through Store.InsertComponent.
// Handle-typed fields (ApertureShapeHandle, MaterialHandle) are resolved
// back to database ids through the dispatcher's own catalogs before the
// insert, since a freshly connected client only ever knows entities by
// handle.
func (d *Dispatcher) insertComponent(ctx context.Context, kind catalog.RequestKind, r *catalog.Reader) error {
	switch kind {
	case catalog.SourceProductTable:
		e, err := catalog.DecodeProduct(0, r)
		if err != nil {
			return err
		}
		_, err = d.store.InsertComponent(ctx, "products", []string{"name"}, []any{e.Name})
		return err

	case catalog.SourceApertureShapeTable:
		e, err := catalog.DecodeApertureShape(0, r)
		if err != nil {
			return err
		}
		_, err = d.store.InsertComponent(ctx, "aperture_shapes", []string{"shape"}, []any{e.Shape})
		return err

	case catalog.SourceApertureTable:
		e, err := catalog.DecodeAperture(0, r)
		if err != nil {
			return err
		}
		shape, ok := d.catalogs.ApertureShapes.GetByHandle(e.ApertureShapeHandle)
		if !ok {
			return fmt.Errorf("dispatch: unknown aperture shape handle %d", e.ApertureShapeHandle)
		}
		var nibbleID any
		if e.IsNibble {
			nibbleID = e.NibbleApertureID
		}
		_, err = d.store.InsertComponent(ctx, "apertures",
			[]string{"width", "length", "base_width", "base_length", "aperture_shape_id", "quantity", "nibble_aperture_id"},
			[]any{e.Width, e.Length, e.BaseWidth, e.BaseLength, shape.DatabaseID(), e.Quantity, nibbleID})
		return err

	case catalog.SourceMaterialTable:
		e, err := catalog.DecodeMaterial(0, r)
		if err != nil {
			return err
		}
		id, err := d.store.InsertComponent(ctx, "materials",
			[]string{"name", "hardness", "thickness"}, []any{e.Name, e.Hardness, e.Thickness})
		if err != nil {
			return err
		}
		for _, p := range e.Prices {
			if _, err := d.store.InsertComponent(ctx, "material_prices",
				[]string{"material_id", "width", "length", "price", "pricing_type"},
				[]any{id, p.Width, p.Length, p.Price, uint32(p.Type)}); err != nil {
				return err
			}
		}
		return nil

	case catalog.SourceBackingStripsTable:
		e, err := catalog.DecodeBackingStrip(0, r)
		if err != nil {
			return err
		}
		material, ok := d.catalogs.Materials.GetByHandle(e.MaterialHandle)
		if !ok {
			return fmt.Errorf("dispatch: unknown material handle %d", e.MaterialHandle)
		}
		_, err = d.store.InsertComponent(ctx, "backing_strips", []string{"material_id"}, []any{material.DatabaseID()})
		return err

	case catalog.SourceSideIronTable:
		e, err := catalog.DecodeSideIron(0, r)
		if err != nil {
			return err
		}
		var price, screws any
		if e.Price != nil {
			price = *e.Price
		}
		if e.Screws != nil {
			screws = *e.Screws
		}
		_, err = d.store.InsertComponent(ctx, "side_irons",
			[]string{"type", "length", "drawing_number", "hyperlink", "price", "screws"},
			[]any{byte(e.Type), e.Length, e.DrawingNumber, e.Hyperlink, price, screws})
		return err

	case catalog.SourceSideIronPricesTable:
		e, err := catalog.DecodeSideIronPrice(0, r)
		if err != nil {
			return err
		}
		_, err = d.store.InsertComponent(ctx, "side_iron_prices",
			[]string{"side_iron_type", "lower_length", "upper_length", "extra_flex", "price"},
			[]any{uint32(e.Type), e.LowerLength, e.UpperLength, e.ExtraFlex, e.Price})
		return err

	case catalog.SourceMachineTable:
		e, err := catalog.DecodeMachine(0, r)
		if err != nil {
			return err
		}
		_, err = d.store.InsertComponent(ctx, "machines", []string{"manufacturer", "model"}, []any{e.Manufacturer, e.Model})
		return err

	case catalog.SourceMachineDeckTable:
		e, err := catalog.DecodeMachineDeck(0, r)
		if err != nil {
			return err
		}
		_, err = d.store.InsertComponent(ctx, "machine_decks", []string{"deck"}, []any{e.Deck})
		return err

	case catalog.SourceExtraPricesTable:
		e, err := catalog.DecodeExtraPrice(0, r)
		if err != nil {
			return err
		}
		var amount, sqm any
		if e.Amount != nil {
			amount = *e.Amount
		}
		if e.SquareMetres != nil {
			sqm = *e.SquareMetres
		}
		_, err = d.store.InsertComponent(ctx, "extra_prices",
			[]string{"price_type", "price", "amount", "square_metres"},
			[]any{uint32(e.Type), e.Price, amount, sqm})
		return err

	case catalog.SourceLabourTimesTable:
		e, err := catalog.DecodeLabourTime(0, r)
		if err != nil {
			return err
		}
		_, err = d.store.InsertComponent(ctx, "labour_times", []string{"job", "minutes"}, []any{e.Job, e.Time})
		return err

	case catalog.SourcePowderCoatingTable:
		e, err := catalog.DecodePowderCoatingPrice(0, r)
		if err != nil {
			return err
		}
		_, err = d.store.InsertComponent(ctx, "powder_coating_prices",
			[]string{"hook_price", "strap_price"}, []any{e.HookPrice, e.StrapPrice})
		return err

	default:
		return fmt.Errorf("dispatch: %s is not an insertable component kind", kind)
	}
}
