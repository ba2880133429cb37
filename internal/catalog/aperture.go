package catalog

import (
	"fmt"
	"strconv"
)

// Aperture represents an aperture tool. ApertureShapeHandle is a handle
// into an ApertureShape catalog; NibbleApertureID is a database id
// resolved via FindByID. The two fields deliberately use different
// addressing: shapes are always sourced alongside apertures, nibble
// references may dangle until their aperture arrives.
type Aperture struct {
	base
	Width, Length         float32
	BaseWidth, BaseLength uint16
	ApertureShapeHandle   Handle
	Quantity              uint16
	IsNibble              bool
	NibbleApertureID      uint32
}

// NullAperture is installed at handle 0 of an Aperture catalog.
func NullAperture() Aperture { return Aperture{} }

// DecodeAperture reads an Aperture's kind-specific fields.
func DecodeAperture(id uint32, r *Reader) (Aperture, error) {
	a := Aperture{base: base{id: id}}
	var err error
	if a.Width, err = r.Float32(); err != nil {
		return Aperture{}, err
	}
	if a.Length, err = r.Float32(); err != nil {
		return Aperture{}, err
	}
	if a.BaseWidth, err = r.Uint16(); err != nil {
		return Aperture{}, err
	}
	if a.BaseLength, err = r.Uint16(); err != nil {
		return Aperture{}, err
	}
	shapeHandle, err := r.Uint32()
	if err != nil {
		return Aperture{}, err
	}
	a.ApertureShapeHandle = Handle(shapeHandle)
	if a.Quantity, err = r.Uint16(); err != nil {
		return Aperture{}, err
	}
	if a.IsNibble, err = r.Bool(); err != nil {
		return Aperture{}, err
	}
	if a.IsNibble {
		if a.NibbleApertureID, err = r.Uint32(); err != nil {
			return Aperture{}, err
		}
	}
	return a, nil
}

// Shape resolves this aperture's ApertureShape through the given
// catalog.
func (a Aperture) Shape(shapes *Catalog[ApertureShape]) (ApertureShape, bool) {
	return shapes.GetByHandle(a.ApertureShapeHandle)
}

// Name builds the display name used in search summaries. nibbleName
// resolves the nibbled-from aperture's
// own name when IsNibble is set, since that lookup is by database id and
// crosses back into the same catalog.
func (a Aperture) Name(shapes *Catalog[ApertureShape], apertures *Catalog[Aperture]) string {
	shape, ok := shapes.GetByHandle(a.ApertureShapeHandle)
	if !ok {
		return ""
	}

	var name string
	switch shape.Shape {
	case "Blank":
		name = "Blank"
	case "SQ", "DIA":
		name = fmt.Sprintf("%s%s", formatFloat(a.Width), shape.Shape)
	case "BOTH":
		name = "ERROR!"
	default:
		name = fmt.Sprintf("%s%s%s", formatFloat(a.Width), shape.Shape, formatFloat(a.Length))
	}

	if a.IsNibble {
		if nibbled, ok := apertures.FindByID(a.NibbleApertureID); ok {
			name += " (Nibble using " + nibbled.Name(shapes, apertures) + ")"
		}
	}
	return name
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// Less orders two apertures by shape order rank, then by width.
func (a Aperture) Less(other Aperture) bool {
	if a.ApertureShapeHandle != other.ApertureShapeHandle {
		return ShapeOrder(uint32(a.ApertureShapeHandle)) < ShapeOrder(uint32(other.ApertureShapeHandle))
	}
	return a.Width < other.Width
}
