// Package hub fans JSON messages out to websocket clients through a single
// channel-driven goroutine.
package hub

// Message is one websocket text frame.
type Message struct {
	Data []byte

	// Retain keeps the message as the hub's current value; clients that
	// connect later receive it first.
	Retain bool
}

// NewJSONMessage creates a transient message from pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// NewStateMessage creates a retained message from pre-encoded JSON.
func NewStateMessage(data []byte) Message {
	return Message{Data: data, Retain: true}
}
