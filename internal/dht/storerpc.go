package dht

import (
	"errors"
	"time"

	"github.com/sheepfriend/p2p-player/internal/repository"
)

// IterativeStore implements §4.1's two-phase store: find the K contacts
// closest to ID(tagHash) and offer each of them the hash via STORE_QUERY.
// originatorEndpoint is the local node's endpoint unless this call
// republishes a foreign resource, in which case it is the original
// holder's endpoint.
func (n *Node) IterativeStore(tag repository.CompleteTag, publicationTime time.Time, originatorEndpoint string) {
	target := DeriveID([]byte(tag.TagHash))
	contacts := n.IterativeFindNode(target)

	for _, c := range contacts {
		cid := newConversationID()
		n.stores.PutSent(cid, sentStoreOffer{
			tag:                tag,
			publicationTime:    publicationTime,
			originatorEndpoint: originatorEndpoint,
			target:             c,
			arrival:            n.now(),
		})
		req := Message{
			Kind:               KindStoreQuery,
			ConversationID:     cid,
			TagHash:            tag.TagHash,
			PublicationTime:    publicationTime,
			OriginatorEndpoint: originatorEndpoint,
		}
		if err := n.send(c, req); err != nil {
			n.log.Debugf("dht: STORE_QUERY to %s failed: %v", c.ID, err)
		}
	}
}

func (n *Node) handleStoreQuery(msg Message) {
	sender, err := ParseIDHex(msg.SenderID)
	if err != nil {
		return
	}
	senderContact := Contact{ID: sender, Endpoint: msg.SenderEndpoint}

	endpoint := msg.OriginatorEndpoint
	if endpoint == "" {
		endpoint = msg.SenderEndpoint
	}

	repo, err := n.repoOrErr()
	if err != nil {
		n.log.Warnf("dht: handleStoreQuery: %v", err)
		return
	}

	existing, ok, err := repo.Get(msg.TagHash)
	if err != nil {
		n.log.Warnf("dht: repository lookup failed: %v", err)
		return
	}

	var currentPub time.Time
	var hasURL bool
	if ok {
		currentPub, hasURL, _ = repo.GetPublicationTime(existing.ID, endpoint)
	}

	switch {
	case !hasURL:
		n.stores.PutAccepted(msg.ConversationID, n.now())
		reply := Message{Kind: KindStoreResponse, ConversationID: msg.ConversationID, ShouldSendData: true}
		_ = n.send(senderContact, reply)
	case msg.PublicationTime.After(currentPub):
		if !withinClockSkew(msg.PublicationTime, n.now()) {
			n.log.Debugf("dht: STORE_QUERY from %s: %v", msg.SenderID, ErrClockSkewRejected)
			return
		}
		if err := repo.RefreshResource(existing.ID, endpoint, msg.PublicationTime); err != nil {
			n.log.Warnf("dht: refresh failed: %v", err)
		}
		// Silence preserved deliberately: the source sends no reply on the
		// refresh path.
	default:
		// Stale publication for a known endpoint: ignore.
	}
}

// handleStoreResponseSideEffect implements the second half of the
// STORE_RESPONSE handler: if the offer was accepted and this node still
// holds the matching outbound offer, send the data.
func (n *Node) handleStoreResponseSideEffect(msg Message) {
	if !msg.ShouldSendData {
		return
	}
	offer, ok := n.stores.TakeSent(msg.ConversationID)
	if !ok {
		return
	}
	data := Message{
		Kind:               KindStoreData,
		ConversationID:     msg.ConversationID,
		Tag:                &offer.tag,
		PublicationTime:    offer.publicationTime,
		OriginatorEndpoint: offer.originatorEndpoint,
	}
	if err := n.send(offer.target, data); err != nil {
		n.log.Debugf("dht: STORE_DATA to %s failed: %v", offer.target.ID, err)
	}
}

func (n *Node) handleStoreData(msg Message) {
	if !n.stores.TakeAccepted(msg.ConversationID) {
		return
	}
	if msg.Tag == nil {
		return
	}
	if !withinClockSkew(msg.PublicationTime, n.now()) {
		n.log.Warnf("dht: STORE_DATA from %s: %v", msg.SenderID, ErrClockSkewRejected)
		return
	}
	repo, err := n.repoOrErr()
	if err != nil {
		n.log.Warnf("dht: handleStoreData: %v", err)
		return
	}
	endpoint := msg.OriginatorEndpoint
	if endpoint == "" {
		endpoint = msg.SenderEndpoint
	}
	if err := repo.StoreResource(*msg.Tag, endpoint, msg.PublicationTime); err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
		n.log.Warnf("dht: StoreResource failed: %v", err)
	}
}

func withinClockSkew(publicationTime, now time.Time) bool {
	return !publicationTime.After(now.Add(MaxClockSkew))
}
