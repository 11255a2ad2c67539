package protocol

import "sort"

// Magic prefixes every serialized message.
const Magic = "squirrel"

// Value is either a String or an *Object.
type Value interface {
	isValue()
}

// String is a leaf value. It may not contain '"'.
type String string

func (String) isValue() {}

// Property is one name/value pair of an Object.
type Property struct {
	Name  string
	Value Value
}

// Object is an ordered collection of named values. Names are unique on
// anything produced by the decoder; Add does not enforce it.
type Object struct {
	props []Property
}

func (*Object) isValue() {}

func NewObject(props ...Property) *Object {
	o := &Object{}
	for _, p := range props {
		o.Add(p.Name, p.Value)
	}
	return o
}

// Add appends a property. A second Add with the same name leaves both in
// place; Get then returns the first.
func (o *Object) Add(name string, v Value) *Object {
	o.props = append(o.props, Property{Name: name, Value: v})
	return o
}

// Set replaces the first property called name, or appends it.
func (o *Object) Set(name string, v Value) *Object {
	for i := range o.props {
		if o.props[i].Name == name {
			o.props[i].Value = v
			return o
		}
	}
	return o.Add(name, v)
}

func (o *Object) lookup(name string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	for _, p := range o.props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Get returns the named value, or an empty object when name is absent.
func (o *Object) Get(name string) Value {
	if v, ok := o.lookup(name); ok {
		return v
	}
	return &Object{}
}

func (o *Object) Has(name string) bool {
	_, ok := o.lookup(name)
	return ok
}

// String returns the named value when it is a string leaf.
func (o *Object) String(name string) (string, bool) {
	v, ok := o.lookup(name)
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

// Object returns the named value when it is a nested object.
func (o *Object) Object(name string) (*Object, bool) {
	v, ok := o.lookup(name)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*Object)
	return obj, ok
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.props)
}

// Properties returns a copy of the properties in insertion order.
func (o *Object) Properties() []Property {
	if o == nil {
		return nil
	}
	out := make([]Property, len(o.props))
	copy(out, o.props)
	return out
}

// Equal compares two trees without regard to property order.
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	a, b := o.sorted(), other.sorted()
	for i := range a {
		if a[i].Name != b[i].Name || !valuesEqual(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

func (o *Object) sorted() []Property {
	props := o.Properties()
	sort.SliceStable(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return props
}

func valuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case *Object:
		bv, ok := b.(*Object)
		return ok && av.Equal(bv)
	default:
		return a == nil && b == nil
	}
}

// Message is a root object behind the magic prefix.
type Message struct {
	Body *Object
}

func NewMessage(body *Object) *Message {
	if body == nil {
		body = &Object{}
	}
	return &Message{Body: body}
}

// Type returns the "type" property, or "" when it is missing or not a string.
func (m *Message) Type() string {
	if m == nil {
		return ""
	}
	s, _ := m.Body.String(PropType)
	return s
}

func (m *Message) Get(name string) Value {
	if m == nil {
		return &Object{}
	}
	return m.Body.Get(name)
}

func (m *Message) String(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	return m.Body.String(name)
}

func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.Body.Equal(other.Body)
}
