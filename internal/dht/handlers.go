package dht

import (
	"time"

	"github.com/sheepfriend/p2p-player/internal/repository"
)

func (n *Node) handlePing(msg Message) {
	reply := Message{Kind: KindPong, ConversationID: msg.ConversationID}
	sender, err := ParseIDHex(msg.SenderID)
	if err != nil {
		return
	}
	_ = n.send(Contact{ID: sender, Endpoint: msg.SenderEndpoint}, reply)
}

func (n *Node) handleFindNode(msg Message) {
	target, err := ParseIDHex(msg.Target)
	sender, serr := ParseIDHex(msg.SenderID)
	if err != nil || serr != nil {
		return
	}
	n.rt.Touch(target)
	closest := n.rt.CloseContacts(target, sender)
	reply := Message{
		Kind:           KindFindNodeResponse,
		ConversationID: msg.ConversationID,
		Contacts:       toWireContacts(closest),
	}
	_ = n.send(Contact{ID: sender, Endpoint: msg.SenderEndpoint}, reply)
}

func (n *Node) handleFindValue(msg Message) {
	sender, err := ParseIDHex(msg.SenderID)
	if err != nil {
		return
	}
	senderContact := Contact{ID: sender, Endpoint: msg.SenderEndpoint}

	var resources []repository.ResourceRecord
	if repo, err := n.repoOrErr(); err != nil {
		n.log.Warnf("dht: handleFindValue: %v", err)
	} else if resources, err = repo.SearchFor(msg.Query); err != nil {
		n.log.Warnf("dht: SearchFor(%q) failed: %v", msg.Query, err)
	}
	if len(resources) > 0 {
		reply := Message{
			Kind:           KindFindValueDataResp,
			ConversationID: msg.ConversationID,
			Resources:      resources,
		}
		_ = n.send(senderContact, reply)
		return
	}

	target := DeriveID([]byte(msg.Query))
	n.rt.Touch(target)
	closest := n.rt.CloseContacts(target, sender)
	reply := Message{
		Kind:           KindFindValueContactResp,
		ConversationID: msg.ConversationID,
		Contacts:       toWireContacts(closest),
	}
	_ = n.send(senderContact, reply)
}

// MaxClockSkew is MAX_CLOCK_SKEW: publication times more than this far in
// the future are rejected.
const MaxClockSkew = time.Hour
