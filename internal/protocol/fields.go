package protocol

// Property names used by the discovery and transfer messages.
const (
	PropType = "type"
	PropName = "name"
	PropIP   = "ip"
	PropFile = "file"
	PropData = "data"
)

// Message types.
const (
	TypeBroadcast = "broadcast"
	TypeAvailable = "available"
	TypeTransfer  = "transfer"
)

// NewBroadcast announces a sender looking for receivers.
func NewBroadcast(name, ip string) *Message {
	return NewMessage(NewObject().
		Add(PropType, String(TypeBroadcast)).
		Add(PropName, String(name)).
		Add(PropIP, String(ip)))
}

// NewAvailable answers a broadcast with the receiver's identity.
func NewAvailable(name, ip string) *Message {
	return NewMessage(NewObject().
		Add(PropType, String(TypeAvailable)).
		Add(PropName, String(name)).
		Add(PropIP, String(ip)))
}

// NewTransfer carries one file. data is already base64 text.
func NewTransfer(name, ip, file, data string) *Message {
	return NewMessage(NewObject().
		Add(PropType, String(TypeTransfer)).
		Add(PropName, String(name)).
		Add(PropIP, String(ip)).
		Add(PropFile, String(file)).
		Add(PropData, String(data)))
}
