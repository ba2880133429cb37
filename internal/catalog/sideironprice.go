package catalog

// SideIronPrice represents a price applying to a length range of one
// side-iron type.
type SideIronPrice struct {
	base
	Type                     SideIronType
	LowerLength, UpperLength uint32
	ExtraFlex                bool
	Price                    float32
}

// NullSideIronPrice is installed at handle 0 of a SideIronPrice catalog.
func NullSideIronPrice() SideIronPrice { return SideIronPrice{} }

// DecodeSideIronPrice reads a SideIronPrice's kind-specific fields. The
// type tag here is read as a 4-byte field, unlike SideIron's 1-byte tag
// (see DecodeSideIron).
func DecodeSideIronPrice(id uint32, r *Reader) (SideIronPrice, error) {
	p := SideIronPrice{base: base{id: id}}

	typ, err := r.Uint32()
	if err != nil {
		return SideIronPrice{}, err
	}
	p.Type = SideIronType(typ)

	if p.LowerLength, err = r.Uint32(); err != nil {
		return SideIronPrice{}, err
	}
	if p.UpperLength, err = r.Uint32(); err != nil {
		return SideIronPrice{}, err
	}
	if p.ExtraFlex, err = r.Bool(); err != nil {
		return SideIronPrice{}, err
	}
	if p.Price, err = r.Float32(); err != nil {
		return SideIronPrice{}, err
	}

	return p, nil
}

// Name returns the display label for the set of side irons this price
// applies to.
func (p SideIronPrice) Name() string {
	if p.Type == SideIronNone {
		return "None"
	}
	return p.Type.String() + " Side Iron"
}

// Less compares two side iron prices by price alone.
func (p SideIronPrice) Less(other SideIronPrice) bool {
	return p.Price < other.Price
}
