package dht

import (
	"errors"
	"fmt"
	"time"
)

// CheckInterval is CHECK_INTERVAL: the tick MindBuckets and MindCaches run
// on.
const CheckInterval = time.Millisecond

// SawContact is called on every inbound message (per §4.1) before
// type-dispatch. It enqueues the sighting for MindBuckets to apply the
// admission rules; the queue is bounded and sightings are dropped when
// full rather than blocking the caller, per §4.5.
func (n *Node) SawContact(c Contact) {
	if c.ID == n.self.ID {
		return
	}
	select {
	case n.contactQueue <- c:
	default:
	}
}

// mindBuckets drains the contact queue applying the admission rules in
// §4.2: already-present contacts are refreshed or promoted; new contacts
// fill empty capacity; contacts that would overflow a full bucket only
// displace its stalest member if that member fails to answer a PING.
func (n *Node) mindBuckets() {
	defer n.wg.Done()
	ticker := time.NewTicker(CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.drainContactQueue()
		}
	}
}

func (n *Node) drainContactQueue() {
	for {
		select {
		case c := <-n.contactQueue:
			if err := n.admit(c); err != nil && errors.Is(err, ErrAdmissionConflict) {
				n.log.Debugf("dht: %v", err)
			}
		default:
			return
		}
	}
}

// admit applies §4.2's admission rules to a sighted contact. It returns
// ErrAdmissionConflict, wrapping the blocker and applicant ids, when a
// full bucket's stalest entry is still reachable and the applicant is
// rejected as a result.
func (n *Node) admit(c Contact) error {
	if existing, ok := n.rt.Get(c.ID); ok {
		if existing.Endpoint != c.Endpoint {
			n.rt.Put(c)
			return nil
		}
		n.rt.Promote(c.ID)
		return nil
	}

	blocker, full := n.rt.Blocker(c.ID)
	if !full {
		n.rt.Put(c)
		n.metrics.SetRoutingTableSize(n.rt.Size())
		return nil
	}

	if n.pingAlive(blocker) {
		return fmt.Errorf("dht: %s blocked by live %s: %w", c.ID, blocker.ID, ErrAdmissionConflict)
	}
	n.rt.Remove(blocker.ID)
	n.rt.Put(c)
	n.metrics.SetRoutingTableSize(n.rt.Size())
	return nil
}

func (n *Node) pingAlive(c Contact) bool {
	_, err := n.doRPC(c, Message{Kind: KindPing}, KindPong)
	return err == nil
}
