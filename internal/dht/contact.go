package dht

import "time"

// Contact is a peer's (ID, endpoint) pair as known locally. Equality for
// routing-table purposes is by ID alone; the endpoint may change for a
// given ID (re-binding across restarts or NAT rebinding upstream of us).
type Contact struct {
	ID       ID
	Endpoint string
}

// timedContact is the internal bucket entry: a Contact plus the bookkeeping
// the routing table needs for LRU ordering.
type timedContact struct {
	Contact  Contact
	LastSeen time.Time
}
