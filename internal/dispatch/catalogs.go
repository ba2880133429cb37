package dispatch

import (
	"context"
	"time"

	"github.com/ocx/drawserver/internal/catalog"
)

// Catalogs bundles every per-kind registry the dispatcher rebuilds and
// serves.
type Catalogs struct {
	Products       *catalog.Catalog[catalog.Product]
	Apertures      *catalog.Catalog[catalog.Aperture]
	ApertureShapes *catalog.Catalog[catalog.ApertureShape]
	Materials      *catalog.Catalog[catalog.Material]
	SideIrons      *catalog.Catalog[catalog.SideIron]
	SideIronPrices *catalog.Catalog[catalog.SideIronPrice]
	ExtraPrices    *catalog.Catalog[catalog.ExtraPrice]
	LabourTimes    *catalog.Catalog[catalog.LabourTime]
	Machines       *catalog.Catalog[catalog.Machine]
	MachineDecks   *catalog.Catalog[catalog.MachineDeck]
	PowderCoatings *catalog.Catalog[catalog.PowderCoatingPrice]
	BackingStrips  *catalog.Catalog[catalog.BackingStrip]
}

// NewCatalogs constructs every catalog, wiring each to its Null/Decode
// pair.
func NewCatalogs() *Catalogs {
	c := &Catalogs{
		Products:       catalog.New(catalog.NullProduct(), catalog.DecodeProduct),
		Apertures:      catalog.New(catalog.NullAperture(), catalog.DecodeAperture),
		ApertureShapes: catalog.New(catalog.NullApertureShape(), catalog.DecodeApertureShape),
		Materials:      catalog.New(catalog.NullMaterial(), catalog.DecodeMaterial),
		SideIrons:      catalog.New(catalog.NullSideIron(), catalog.DecodeSideIron),
		SideIronPrices: catalog.New(catalog.NullSideIronPrice(), catalog.DecodeSideIronPrice),
		ExtraPrices:    catalog.New(catalog.NullExtraPrice(), catalog.DecodeExtraPrice),
		LabourTimes:    catalog.New(catalog.NullLabourTime(), catalog.DecodeLabourTime),
		Machines:       catalog.New(catalog.NullMachine(), catalog.DecodeMachine),
		MachineDecks:   catalog.New(catalog.NullMachineDeck(), catalog.DecodeMachineDeck),
		PowderCoatings: catalog.New(catalog.NullPowderCoatingPrice(), catalog.DecodePowderCoatingPrice),
		BackingStrips:  catalog.New(catalog.NullBackingStrip(), catalog.DecodeBackingStrip),
	}

	// Apertures and backing strips reference shapes/materials by handle;
	// a rebuild of the referenced kind invalidates them.
	c.ApertureShapes.AddCallback(c.Apertures.MarkDirty)
	c.Materials.AddCallback(c.BackingStrips.MarkDirty)

	return c
}

// cacheable is satisfied by every Catalog[T] regardless of T, letting
// AttachCache and WarmAll treat the twelve catalogs uniformly.
type cacheable interface {
	SetCache(cache catalog.HotCache, key string, ttl time.Duration)
	WarmFromCache(ctx context.Context) (bool, error)
}

func (c *Catalogs) all() map[string]cacheable {
	return map[string]cacheable{
		"products":       c.Products,
		"apertures":      c.Apertures,
		"apertureShapes": c.ApertureShapes,
		"materials":      c.Materials,
		"sideIrons":      c.SideIrons,
		"sideIronPrices": c.SideIronPrices,
		"extraPrices":    c.ExtraPrices,
		"labourTimes":    c.LabourTimes,
		"machines":       c.Machines,
		"machineDecks":   c.MachineDecks,
		"powderCoatings": c.PowderCoatings,
		"backingStrips":  c.BackingStrips,
	}
}

// AttachCache wires cache as a write-through hot cache for every catalog,
// each under its own namespaced key.
func (c *Catalogs) AttachCache(cache catalog.HotCache, keyPrefix string) {
	for key, cat := range c.all() {
		cat.SetCache(cache, keyPrefix+key, time.Hour)
	}
}

// WarmAll loads every catalog's cached buffer, if any, so the dispatcher
// has something to serve immediately after a restart instead of an empty
// table while the first database rebuild is still in flight.
func (c *Catalogs) WarmAll(ctx context.Context) {
	for _, cat := range c.all() {
		_, _ = cat.WarmFromCache(ctx)
	}
}
