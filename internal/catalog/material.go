package catalog

import (
	"fmt"
	"sort"
)

// MaterialPrice is one priced size tier for a Material.
type MaterialPrice struct {
	PriceID uint32
	Width   float32
	Length  float32
	Price   float32
	Type    MaterialPricingType
}

// Material represents a mat material, with its per-size price tiers.
type Material struct {
	base
	Name      string
	Hardness  uint16
	Thickness uint16
	Prices    []MaterialPrice
}

// NullMaterial is installed at handle 0 of a Material catalog.
func NullMaterial() Material { return Material{} }

// DecodeMaterial reads a Material's kind-specific fields and sorts the
// price tiers by (width, price) so callers can binary-search them.
func DecodeMaterial(id uint32, r *Reader) (Material, error) {
	m := Material{base: base{id: id}}
	var err error
	if m.Hardness, err = r.Uint16(); err != nil {
		return Material{}, err
	}
	if m.Thickness, err = r.Uint16(); err != nil {
		return Material{}, err
	}
	if m.Name, err = r.String(); err != nil {
		return Material{}, err
	}

	count, err := r.Byte()
	if err != nil {
		return Material{}, err
	}
	m.Prices = make([]MaterialPrice, 0, count)
	for i := byte(0); i < count; i++ {
		var p MaterialPrice
		priceID, err := r.Uint32()
		if err != nil {
			return Material{}, err
		}
		p.PriceID = priceID
		if p.Width, err = r.Float32(); err != nil {
			return Material{}, err
		}
		if p.Length, err = r.Float32(); err != nil {
			return Material{}, err
		}
		if p.Price, err = r.Float32(); err != nil {
			return Material{}, err
		}
		pricingType, err := r.Uint32()
		if err != nil {
			return Material{}, err
		}
		p.Type = MaterialPricingType(pricingType)
		m.Prices = append(m.Prices, p)
	}

	sort.SliceStable(m.Prices, func(i, j int) bool {
		if m.Prices[i].Width != m.Prices[j].Width {
			return m.Prices[i].Width < m.Prices[j].Width
		}
		return m.Prices[i].Price < m.Prices[j].Price
	})

	return m, nil
}

// Description builds the display name used for backing strips and
// search summaries.
func (m Material) Description() string {
	return fmt.Sprintf("%dmm %s %d Shore Hardness", m.Thickness, m.Name, m.Hardness)
}
