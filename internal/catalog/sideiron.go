package catalog

import "fmt"

// SideIron represents a single side iron used for mats.
type SideIron struct {
	base
	Type          SideIronType
	Length        uint16
	DrawingNumber string
	Hyperlink     string
	Price         *float32
	Screws        *uint32
}

// NullSideIron is installed at handle 0 of a SideIron catalog.
func NullSideIron() SideIron { return SideIron{} }

// DecodeSideIron reads a SideIron's kind-specific fields. Note
// SideIron's type tag is a single byte on the wire, unlike
// SideIronPrice's 4-byte tag for the same enum (see DecodeSideIronPrice).
func DecodeSideIron(id uint32, r *Reader) (SideIron, error) {
	s := SideIron{base: base{id: id}}

	typ, err := r.Byte()
	if err != nil {
		return SideIron{}, err
	}
	s.Type = SideIronType(typ)

	if s.Length, err = r.Uint16(); err != nil {
		return SideIron{}, err
	}
	if s.DrawingNumber, err = r.String(); err != nil {
		return SideIron{}, err
	}
	if s.Hyperlink, err = r.String(); err != nil {
		return SideIron{}, err
	}

	hasPrice, err := r.Bool()
	if err != nil {
		return SideIron{}, err
	}
	if hasPrice {
		price, err := r.Float32()
		if err != nil {
			return SideIron{}, err
		}
		s.Price = &price
	}

	hasScrews, err := r.Bool()
	if err != nil {
		return SideIron{}, err
	}
	if hasScrews {
		screws, err := r.Uint32()
		if err != nil {
			return SideIron{}, err
		}
		s.Screws = &screws
	}

	return s, nil
}

// Name builds the full display name including length and type.
func (s SideIron) Name() string {
	if s.Type == SideIronNone {
		return "None"
	}
	return fmt.Sprintf("%dmm Type %s %s Side Iron", s.Length, s.Type, s.DrawingNumber)
}
