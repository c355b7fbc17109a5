package dht

import (
	"encoding/json"
	"time"

	"github.com/sheepfriend/p2p-player/internal/repository"
)

// Kind discriminates the wire message set. The source this repository is
// modeled on self-describes messages with a name string rather than an
// integer tag; we keep that for debuggability.
type Kind string

const (
	KindPing                 Kind = "PING"
	KindPong                 Kind = "PONG"
	KindFindNode             Kind = "FIND_NODE"
	KindFindNodeResponse     Kind = "FIND_NODE_RESPONSE"
	KindFindValue            Kind = "FIND_VALUE"
	KindFindValueContactResp Kind = "FIND_VALUE_CONTACT_RESPONSE"
	KindFindValueDataResp    Kind = "FIND_VALUE_DATA_RESPONSE"
	KindStoreQuery           Kind = "STORE_QUERY"
	KindStoreResponse        Kind = "STORE_RESPONSE"
	KindStoreData            Kind = "STORE_DATA"
)

// WireContact is the over-the-wire representation of a Contact.
type WireContact struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
}

func toWireContacts(cs []Contact) []WireContact {
	out := make([]WireContact, 0, len(cs))
	for _, c := range cs {
		out = append(out, WireContact{ID: c.ID.Hex(), Endpoint: c.Endpoint})
	}
	return out
}

func fromWireContacts(ws []WireContact) []Contact {
	out := make([]Contact, 0, len(ws))
	for _, w := range ws {
		id, err := ParseIDHex(w.ID)
		if err != nil {
			continue
		}
		out = append(out, Contact{ID: id, Endpoint: w.Endpoint})
	}
	return out
}

// Message is the single wire envelope for every DHT request and response.
// Every field after Kind is optional and interpreted according to Kind;
// this mirrors a tagged variant more than an inheritance chain, the shape
// this repository's message set follows instead of a class hierarchy.
type Message struct {
	Kind           Kind   `json:"kind"`
	SenderID       string `json:"sender_id"`
	SenderEndpoint string `json:"sender_endpoint"`
	ConversationID string `json:"conversation_id"`

	// FIND_NODE / FIND_VALUE / STORE_QUERY / STORE_DATA request fields.
	Target             string                    `json:"target,omitempty"`
	Query              string                    `json:"query,omitempty"`
	TagHash            string                    `json:"tag_hash,omitempty"`
	PublicationTime    time.Time                 `json:"publication_time,omitempty"`
	OriginatorEndpoint string                    `json:"originator_endpoint,omitempty"`
	Tag                *repository.CompleteTag   `json:"tag,omitempty"`

	// Response fields.
	Contacts       []WireContact              `json:"contacts,omitempty"`
	Resources      []repository.ResourceRecord `json:"resources,omitempty"`
	ShouldSendData bool                       `json:"should_send_data,omitempty"`
}

func (m Message) marshal() json.RawMessage {
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return b
}

func decodeMessage(raw json.RawMessage) (Message, error) {
	var m Message
	err := json.Unmarshal(raw, &m)
	return m, err
}
