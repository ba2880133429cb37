package catalog

import "fmt"

// PowderCoatingPrice represents the price of powder coating a mat's
// hooks and straps.
type PowderCoatingPrice struct {
	base
	HookPrice, StrapPrice float32
}

// NullPowderCoatingPrice is installed at handle 0 of a
// PowderCoatingPrice catalog.
func NullPowderCoatingPrice() PowderCoatingPrice { return PowderCoatingPrice{} }

// DecodePowderCoatingPrice reads a PowderCoatingPrice's kind-specific
// fields.
func DecodePowderCoatingPrice(id uint32, r *Reader) (PowderCoatingPrice, error) {
	p := PowderCoatingPrice{base: base{id: id}}
	var err error
	if p.HookPrice, err = r.Float32(); err != nil {
		return PowderCoatingPrice{}, err
	}
	if p.StrapPrice, err = r.Float32(); err != nil {
		return PowderCoatingPrice{}, err
	}
	return p, nil
}

// Name returns the display label for this powder coating price.
// Database ids for this kind start at 1 and map onto 'A', 'B', ...
// coating types.
func (p PowderCoatingPrice) Name() string {
	return fmt.Sprintf("Type %c: hook price: %g , strap price:%g", byte('A')+byte(p.DatabaseID())-1, p.HookPrice, p.StrapPrice)
}
