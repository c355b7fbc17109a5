package dht

import (
	"errors"

	"github.com/sheepfriend/p2p-player/internal/repository"
)

// Put indexes tag locally and advertises it to the swarm. It computes
// TagHash from the canonical title/artist/album string when the caller
// has not already supplied one (extracting metadata from the underlying
// audio file is outside this package's scope). Put is best-effort and
// fire-and-forget per §4.1: failures are logged, never returned.
func (n *Node) Put(tag repository.CompleteTag) {
	if tag.TagHash == "" {
		tag.TagHash = DeriveID([]byte(tag.Title + "|" + tag.Artist + "|" + tag.Album)).Hex()
	}
	now := n.now()
	if repo, err := n.repoOrErr(); err != nil {
		n.log.Warnf("dht: Put: %v", err)
	} else if err := repo.StoreResource(tag, n.self.Endpoint, now); err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
		n.log.Warnf("dht: local StoreResource failed: %v", err)
	}
	n.IterativeStore(tag, now, n.self.Endpoint)
}

// Get resolves a keyword query to resource records. It checks the local
// KeywordIndex first, matching the symmetry of the FIND_VALUE handler
// (any peer whose index matches answers directly); only when nothing
// matches locally does it fall through to IterativeFindValue.
func (n *Node) Get(query string) []repository.ResourceRecord {
	if repo, err := n.repoOrErr(); err != nil {
		n.log.Warnf("dht: Get: %v", err)
	} else if local, err := repo.SearchFor(query); err != nil {
		n.log.Warnf("dht: local SearchFor failed: %v", err)
	} else if len(local) > 0 {
		return local
	}

	resources, _ := n.IterativeFindValue(query)
	return resources
}
