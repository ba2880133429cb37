package catalog

import (
	"fmt"
	"sync"
)

// ExtraPrice is a priced extra charged per some quantity (nuts, screws,
// tackyback glue, labour minutes, primer, or shot blasting). Which
// optional field is populated depends on Type.
type ExtraPrice struct {
	base
	Type         ExtraPriceType
	Price        float32
	Amount       *uint32  // set for SideIronNuts / SideIronScrews / ShotBlasting
	SquareMetres *float32 // set for TackybackGlue / Primer
}

// NullExtraPrice is installed at handle 0 of an ExtraPrice catalog.
func NullExtraPrice() ExtraPrice { return ExtraPrice{} }

// DecodeExtraPrice reads an ExtraPrice's kind-specific fields.
func DecodeExtraPrice(id uint32, r *Reader) (ExtraPrice, error) {
	e := ExtraPrice{base: base{id: id}}

	rawType, err := r.Uint32()
	if err != nil {
		return ExtraPrice{}, err
	}
	e.Type = ExtraPriceType(rawType)

	if e.Price, err = r.Float32(); err != nil {
		return ExtraPrice{}, err
	}

	switch e.Type {
	case SideIronNuts, SideIronScrews, ShotBlasting:
		amount, err := r.Uint32()
		if err != nil {
			return ExtraPrice{}, err
		}
		e.Amount = &amount
	case TackybackGlue, Primer:
		sqm, err := r.Float32()
		if err != nil {
			return ExtraPrice{}, err
		}
		e.SquareMetres = &sqm
	case Labour:
		// no extra field
	}

	return e, nil
}

// Name returns the display label for this extra price's type.
func (e ExtraPrice) Name() string {
	switch e.Type {
	case SideIronNuts:
		return "Side Iron Nuts"
	case SideIronScrews:
		return "Side Iron Screws"
	case TackybackGlue:
		return "Tackyback Glue"
	case Labour:
		return "Labour"
	case Primer:
		return "Primer"
	case ShotBlasting:
		return "Shot Blasting"
	default:
		return ""
	}
}

// PriceFor computes the total charge for n units of this extra's
// quantity: nuts/screws/shot-blasting and glue/primer are priced per
// unit of their stored amount/square-metre figure, labour is priced per
// 60 (minutes to hours).
func (e ExtraPrice) PriceFor(n float64) (float64, error) {
	switch e.Type {
	case SideIronNuts, SideIronScrews, ShotBlasting:
		if e.Amount == nil {
			return 0, fmt.Errorf("catalog: extra price %q has no amount set", e.Name())
		}
		return n * (float64(e.Price) / float64(*e.Amount)), nil
	case TackybackGlue, Primer:
		if e.SquareMetres == nil {
			return 0, fmt.Errorf("catalog: extra price %q has no square metres set", e.Name())
		}
		return n * (float64(e.Price) / float64(*e.SquareMetres)), nil
	case Labour:
		return n * (float64(e.Price) / 60), nil
	default:
		return 0, fmt.Errorf("catalog: unknown extra price type %d", e.Type)
	}
}

// ExtraPriceIndex keeps the latest-sourced ExtraPrice per type readily
// available (the last sourced entity for a type wins).
type ExtraPriceIndex struct {
	mu     sync.RWMutex
	latest map[ExtraPriceType]ExtraPrice
}

// NewExtraPriceIndex returns an empty index.
func NewExtraPriceIndex() *ExtraPriceIndex {
	return &ExtraPriceIndex{latest: make(map[ExtraPriceType]ExtraPrice)}
}

// Refresh rebuilds the index from every entity currently in cat, in
// ascending handle order, so the last handle for a given type wins.
func (idx *ExtraPriceIndex) Refresh(cat *Catalog[ExtraPrice]) {
	latest := make(map[ExtraPriceType]ExtraPrice)
	for _, h := range cat.HandleSet() {
		e, ok := cat.GetByHandle(h)
		if !ok || h == 0 {
			continue
		}
		latest[e.Type] = e
	}
	idx.mu.Lock()
	idx.latest = latest
	idx.mu.Unlock()
}

// Get returns the current price for an extra-price type, if any has
// been sourced.
func (idx *ExtraPriceIndex) Get(t ExtraPriceType) (ExtraPrice, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.latest[t]
	return e, ok
}
