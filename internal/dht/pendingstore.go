package dht

import (
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/sheepfriend/p2p-player/internal/repository"
)

// sentStoreOffer is what IterativeStore remembers about an outbound
// STORE_QUERY until either a STORE_RESPONSE arrives or it is swept away.
type sentStoreOffer struct {
	tag                repository.CompleteTag
	publicationTime    time.Time
	originatorEndpoint string
	target             Contact
	arrival            time.Time
}

// acceptedStoreOffer is what a STORE_QUERY handler remembers about an
// inbound offer it accepted, until STORE_DATA arrives or it is swept away.
type acceptedStoreOffer struct {
	arrival time.Time
}

// PendingStoreCaches holds the two tables §4.5 names: outbound STORE
// offers awaiting acceptance, and inbound offers this node has accepted
// and is waiting to receive data for.
type PendingStoreCaches struct {
	mu       sync.Mutex
	sent     gcache.Cache
	accepted gcache.Cache
}

// NewPendingStoreCaches builds both tables with the given capacity.
func NewPendingStoreCaches(capacity int) *PendingStoreCaches {
	return &PendingStoreCaches{
		sent:     gcache.New(capacity).LRU().Build(),
		accepted: gcache.New(capacity).LRU().Build(),
	}
}

func (p *PendingStoreCaches) PutSent(conversationID string, offer sentStoreOffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.sent.Set(conversationID, offer)
}

func (p *PendingStoreCaches) TakeSent(conversationID string) (sentStoreOffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.sent.Get(conversationID)
	if err != nil {
		return sentStoreOffer{}, false
	}
	p.sent.Remove(conversationID)
	return v.(sentStoreOffer), true
}

func (p *PendingStoreCaches) PutAccepted(conversationID string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.accepted.Set(conversationID, acceptedStoreOffer{arrival: now})
}

func (p *PendingStoreCaches) TakeAccepted(conversationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.accepted.Get(conversationID)
	if err != nil {
		return false
	}
	p.accepted.Remove(conversationID)
	return true
}

// Sweep drops entries older than MaxCacheTime from both tables.
func (p *PendingStoreCaches) Sweep(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.sent.Keys(false) {
		v, err := p.sent.GetIFPresent(k)
		if err != nil {
			continue
		}
		if now.Sub(v.(sentStoreOffer).arrival) > MaxCacheTime {
			p.sent.Remove(k)
		}
	}
	for _, k := range p.accepted.Keys(false) {
		v, err := p.accepted.GetIFPresent(k)
		if err != nil {
			continue
		}
		if now.Sub(v.(acceptedStoreOffer).arrival) > MaxCacheTime {
			p.accepted.Remove(k)
		}
	}
}
