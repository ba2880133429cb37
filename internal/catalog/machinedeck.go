package catalog

// MachineDeck represents a deck of a specific machine for a customer.
type MachineDeck struct {
	base
	Deck string
}

// NullMachineDeck is installed at handle 0 of a MachineDeck catalog.
func NullMachineDeck() MachineDeck { return MachineDeck{} }

// DecodeMachineDeck reads a MachineDeck's kind-specific fields.
func DecodeMachineDeck(id uint32, r *Reader) (MachineDeck, error) {
	deck, err := r.String()
	if err != nil {
		return MachineDeck{}, err
	}
	return MachineDeck{base: base{id: id}, Deck: deck}, nil
}
