package bootstrap

import (
	"context"
	"github.com/sheepfriend/p2p-player/internal/netx"
)

type PeerSource interface {
	// Discover returns candidate peers to connect to.
	Discover(ctx context.Context) ([]netx.Addr, error)
	Name() string
}
