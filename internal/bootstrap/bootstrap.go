package bootstrap

import (
	"context"
	"math/rand"
	"time"

	"github.com/sheepfriend/p2p-player/internal/netx"
	"github.com/sheepfriend/p2p-player/internal/transport"
)

type Config struct {
	MaxConnectPerRound int
	PerAddrTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConnectPerRound: 12,
		PerAddrTimeout:     2 * time.Second,
	}
}

// RunOnce gathers candidates from sources and attempts connections; this
// is the cold-start half of bucket maintenance, run once at startup before
// the DHT has any routing-table entries of its own.
func RunOnce(ctx context.Context, n *transport.Node, cfg Config, sources ...PeerSource) {
	cands := make([]netx.Addr, 0, 64)

	for _, s := range sources {
		addrs, err := s.Discover(ctx)
		if err != nil {
			n.Logf("bootstrap: %s discover error: %v", s.Name(), err)
			continue
		}
		cands = append(cands, addrs...)
	}

	rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

	seen := make(map[string]struct{}, len(cands))
	connected := 0

	for _, a := range cands {
		if connected >= cfg.MaxConnectPerRound {
			break
		}
		key := string(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		_ = n.ConnectTo(a)
		connected++
	}
}
