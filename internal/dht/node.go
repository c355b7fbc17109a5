package dht

import (
	"sync"
	"time"

	"github.com/sheepfriend/p2p-player/internal/proto"
	"github.com/sheepfriend/p2p-player/internal/repository"
	"github.com/sheepfriend/p2p-player/internal/telemetry"
)

// Sender is the transport seam KademliaNode depends on: anything able to
// address a peer by id and push an Envelope to it.
type Sender interface {
	ID() string
	SendToPeer(id string, env proto.Envelope) error
	Logf(format string, args ...any)
}

// MaxSyncWait is MAX_SYNC_WAIT: how long an outbound RPC waits for its
// response before the caller treats the peer as down for this lookup.
const MaxSyncWait = 500 * time.Millisecond

// ContactQueueSize bounds the admission queue MindBuckets drains.
const ContactQueueSize = 10

// Config bundles the constructor knobs for a KademliaNode.
type Config struct {
	Self           Contact
	Sender         Sender
	Repository     *repository.Store
	Logger         telemetry.Logger
	Metrics        *Metrics
	BootstrapPeers []Contact
}

// Node is the KademliaNode: it orchestrates the BucketList, the
// repository, the message set, the response/pending-store caches, and the
// three maintenance loops (MindBuckets, MindCaches, MindMaintenance).
type Node struct {
	self   Contact
	sender Sender
	repo   *repository.Store
	log    telemetry.Logger
	rt     *BucketList
	cache  *ResponseCache
	stores *PendingStoreCaches
	rl     sync.Mutex
	rlimit map[string]*tokenBucket
	metrics *Metrics

	pendingMu sync.Mutex
	pending   map[string]chan Message

	contactQueue chan Contact

	lastReplication time.Time

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewNode constructs a KademliaNode. Call Start to launch its maintenance
// loops; the node handles inbound RPCs as soon as it exists.
func NewNode(cfg Config) *Node {
	log := cfg.Logger
	if log == nil {
		log = telemetry.Nop()
	}
	m := cfg.Metrics
	if m == nil {
		m = NewMetrics()
	}
	n := &Node{
		self:         cfg.Self,
		sender:       cfg.Sender,
		repo:         cfg.Repository,
		log:          log,
		rt:           NewBucketList(cfg.Self.ID),
		cache:        NewResponseCache(4096),
		stores:       NewPendingStoreCaches(4096),
		rlimit:       make(map[string]*tokenBucket),
		metrics:      m,
		pending:      make(map[string]chan Message),
		contactQueue: make(chan Contact, ContactQueueSize),
		stop:         make(chan struct{}),
	}
	for _, c := range cfg.BootstrapPeers {
		n.rt.Put(c)
	}
	return n
}

// Routing exposes the routing table, mainly for tests and metrics.
func (n *Node) Routing() *BucketList { return n.rt }

// Start launches the three maintenance loops.
func (n *Node) Start() {
	n.wg.Add(3)
	go n.mindBuckets()
	go n.mindCaches()
	go n.mindMaintenance()
}

// Stop signals every maintenance loop to exit and waits for them.
func (n *Node) Stop() {
	n.stopOnce.Do(func() { close(n.stop) })
	n.wg.Wait()
}

func (n *Node) now() time.Time { return time.Now() }

// repoOrErr returns the configured repository, or ErrRepositoryUnavailable
// if this Node was constructed without one (Config.Repository left nil).
func (n *Node) repoOrErr() (*repository.Store, error) {
	if n.repo == nil {
		return nil, ErrRepositoryUnavailable
	}
	return n.repo, nil
}
