package dht

import (
	"errors"
	"time"

	"github.com/sheepfriend/p2p-player/internal/repository"
)

const (
	// MaintenanceInterval is MAINTENANCE_INTERVAL.
	MaintenanceInterval = 10 * time.Minute
	// ExpireTime is EXPIRE_TIME: endpoints older than this are dropped by
	// ResourceStore.Expire.
	ExpireTime = 24 * time.Hour
	// ReplicateTime is REPLICATE_TIME: the minimum gap between full
	// republish passes over every locally held resource.
	ReplicateTime = time.Hour
	// RefreshTime is REFRESH_TIME: a bucket not queried within this long
	// gets a random-ID IterativeFindNode to keep it warm.
	RefreshTime = time.Hour
)

// mindCaches evicts responseCache, acceptedStoreRequests, and
// sentStoreRequests entries older than MaxCacheTime.
func (n *Node) mindCaches() {
	defer n.wg.Done()
	ticker := time.NewTicker(CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			now := n.now()
			n.cache.Sweep(now)
			n.stores.Sweep(now)
		}
	}
}

// mindMaintenance runs ResourceStore.Expire every tick, republishes every
// locally held resource once REPLICATE_TIME has elapsed since the last
// pass, and refreshes any bucket untouched for REFRESH_TIME.
func (n *Node) mindMaintenance() {
	defer n.wg.Done()
	ticker := time.NewTicker(MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.runMaintenancePass()
		}
	}
}

func (n *Node) runMaintenancePass() {
	now := n.now()

	repo, err := n.repoOrErr()
	if err != nil {
		if errors.Is(err, ErrRepositoryUnavailable) {
			n.log.Debugf("dht: maintenance pass skipped: %v", err)
		}
		return
	}

	if err := repo.Expire(now, ExpireTime); err != nil {
		n.log.Warnf("dht: repository expire failed: %v", err)
	}

	if now.Sub(n.lastReplication) > ReplicateTime {
		n.replicateAll(now, repo)
		n.lastReplication = now
	}

	n.refreshBuckets(now)
}

func (n *Node) replicateAll(now time.Time, repo *repository.Store) {
	resources, err := repo.GetAllElements()
	if err != nil {
		n.log.Warnf("dht: replicate: GetAllElements failed: %v", err)
		return
	}
	for _, rec := range resources {
		for _, u := range rec.URLs {
			n.IterativeStore(rec.Tag, u.PublicationTime, u.Endpoint)
		}
	}
}

// refreshBuckets runs IterativeFindNode on a random ID in every bucket
// that has not been queried within RefreshTime.
func (n *Node) refreshBuckets(now time.Time) {
	for _, id := range n.rt.IDsForRefresh(now.Add(-RefreshTime)) {
		n.IterativeFindNode(id)
	}
}
