package dht

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sheepfriend/p2p-player/internal/repository"
)

// IterativeFindValue has the same shape as IterativeFindNode except the
// outbound RPC is FIND_VALUE carrying a keyword query; as soon as any
// queried peer answers with a non-empty resource set the lookup ends and
// those resources are returned. Otherwise it behaves exactly like
// IterativeFindNode and returns the K closest contacts (the caller may
// discard them).
func (n *Node) IterativeFindValue(query string) ([]repository.ResourceRecord, []Contact) {
	start := n.now()
	defer func() { n.metrics.ObserveLookup(n.now().Sub(start).Seconds()) }()

	target := DeriveID([]byte(query))
	n.rt.Touch(target)
	seed := n.rt.CloseContactsN(Alpha, target, n.self.ID)
	sl := newShortlist(target, n.self.ID, seed)

	sem := semaphore.NewWeighted(Alpha)
	ctx := context.Background()

	for {
		batch := sl.nextUnqueried(Alpha)
		if len(batch) == 0 {
			break
		}

		results := make(chan []repository.ResourceRecord, len(batch))
		var wg sync.WaitGroup
		for _, c := range batch {
			c := c
			_ = sem.Acquire(ctx, 1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				results <- n.queryFindValue(sl, c, query)
			}()
		}
		wg.Wait()
		close(results)

		for res := range results {
			if len(res) > 0 {
				return res, nil
			}
		}

		if sl.queriedCount() >= K {
			break
		}
	}

	return nil, sl.closestK(K)
}

func (n *Node) queryFindValue(sl *shortlist, c Contact, query string) []repository.ResourceRecord {
	req := Message{Kind: KindFindValue, Query: query}
	resp, err := n.doRPCEither(c, req, KindFindValueDataResp, KindFindValueContactResp)
	if err != nil {
		sl.remove(c.ID)
		if errors.Is(err, ErrPeerUnreachable) {
			n.log.Debugf("dht: FIND_VALUE to %s: %v", c.ID, err)
		}
		return nil
	}
	if resp.Kind == KindFindValueDataResp {
		return resp.Resources
	}
	sl.merge(fromWireContacts(resp.Contacts))
	return nil
}
