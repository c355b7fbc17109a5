package dht

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// IterativeFindNode returns up to K contacts closest to target, per
// §4.1: seed from the local BucketList, then repeatedly query the next
// α un-queried contacts in parallel, merging their responses into the
// shortlist, until either a round yields no un-queried contacts or K
// contacts have been queried. Termination does not implement the "no
// closer node this round" optimization; the shortlist is simply truncated
// to K at the end.
func (n *Node) IterativeFindNode(target ID) []Contact {
	start := n.now()
	defer func() { n.metrics.ObserveLookup(n.now().Sub(start).Seconds()) }()

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
		var wg sync.WaitGroup
		for _, c := range batch {
			c := c
			_ = sem.Acquire(ctx, 1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				n.queryFindNode(sl, c, target)
			}()
		}
		wg.Wait()
		if sl.queriedCount() >= K {
			break
		}
	}

	return sl.closestK(K)
}

func (n *Node) queryFindNode(sl *shortlist, c Contact, target ID) {
	resp, err := n.doRPC(c, Message{Kind: KindFindNode, Target: target.Hex()}, KindFindNodeResponse)
	if err != nil {
		sl.remove(c.ID)
		if errors.Is(err, ErrPeerUnreachable) {
			n.log.Debugf("dht: FIND_NODE to %s: %v", c.ID, err)
		}
		return
	}
	sl.merge(fromWireContacts(resp.Contacts))
}
