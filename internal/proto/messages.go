package proto

import "encoding/json"

// MessageType tags the outer Envelope so a transport can dispatch without
// decoding the payload.
type MessageType string

const (
	MsgHello MessageType = "hello"
	MsgDHT   MessageType = "dht"
)

// Envelope is the single wire frame exchanged between peers. Payload is
// opaque to the transport; only the dht package knows how to decode it for
// MsgDHT.
type Envelope struct {
	Type    MessageType     `json:"type"`
	FromID  string          `json:"from_id"`
	Payload json.RawMessage `json:"payload"`
}

// Hello is exchanged on connection setup so each side learns the other's
// node id and listen address before any DHT traffic flows.
type Hello struct {
	NodeID string `json:"node_id"`
	Listen string `json:"listen"`
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
