package protocol

// Schema lists the string properties a message type must carry.
type Schema struct {
	Type     string
	Required []string
}

var schemas = map[string]Schema{
	TypeBroadcast: {Type: TypeBroadcast, Required: []string{PropName, PropIP}},
	TypeAvailable: {Type: TypeAvailable, Required: []string{PropName, PropIP}},
	TypeTransfer:  {Type: TypeTransfer, Required: []string{PropName, PropIP, PropFile, PropData}},
}

// SchemaFor returns the schema for a known message type.
func SchemaFor(msgType string) (Schema, bool) {
	s, ok := schemas[msgType]
	return s, ok
}

// Validate checks msg has the given type and every required string property.
func Validate(msg *Message, msgType string) error {
	if msg.Type() != msgType {
		return ErrMessageTypeMismatch
	}
	schema, ok := SchemaFor(msgType)
	if !ok {
		return ErrMessageTypeMismatch
	}
	for _, name := range schema.Required {
		if _, ok := msg.String(name); !ok {
			return MissingPropertyError{Type: msgType, Name: name}
		}
	}
	return nil
}
