package catalog

// base carries the stable database id every entity kind embeds. The
// transient handle lives in the owning Catalog's maps, not on the entity
// itself.
type base struct {
	id uint32
}

// DatabaseID implements Entity.
func (b base) DatabaseID() uint32 { return b.id }

// Product represents a product type a drawing may be of.
type Product struct {
	base
	Name string
}

// NullProduct is installed at handle 0 of a Product catalog.
func NullProduct() Product { return Product{} }

// DecodeProduct reads a Product's kind-specific fields.
func DecodeProduct(id uint32, r *Reader) (Product, error) {
	name, err := r.String()
	if err != nil {
		return Product{}, err
	}
	return Product{base: base{id: id}, Name: name}, nil
}
