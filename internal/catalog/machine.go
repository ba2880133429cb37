package catalog

// Machine represents a customer's machine.
type Machine struct {
	base
	Manufacturer, Model string
}

// NullMachine is installed at handle 0 of a Machine catalog.
func NullMachine() Machine { return Machine{} }

// DecodeMachine reads a Machine's kind-specific fields.
func DecodeMachine(id uint32, r *Reader) (Machine, error) {
	m := Machine{base: base{id: id}}
	var err error
	if m.Manufacturer, err = r.String(); err != nil {
		return Machine{}, err
	}
	if m.Model, err = r.String(); err != nil {
		return Machine{}, err
	}
	return m, nil
}

// Name returns the combined manufacturer and model.
func (m Machine) Name() string {
	return m.Manufacturer + " " + m.Model
}
