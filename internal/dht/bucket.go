package dht

import (
	"net"
	"sort"
	"strings"
	"sync"
	"time"
)

// K is the maximum number of contacts held per k-bucket.
const K = 20

// Alpha is the parallelism factor for iterative lookups.
const Alpha = 3

// NumBuckets is the number of k-buckets a 160-bit ID space is split into.
const NumBuckets = IDBytes * 8

// DiversityPolicy caps how many contacts from the same /24 (or /64 for v6)
// a single bucket may hold, guarding against a single subnet eclipsing a
// bucket. Zero disables the check. Adapted from the teacher's routing
// table, which applies the same cap while inserting into a bucket.
type DiversityPolicy struct {
	MaxPerSubnet int
}

type kbucket struct {
	contacts   []timedContact // index 0 = most recently seen
	lastLookup time.Time
}

// BucketList is the Kademlia k-bucket routing table keyed on a local node
// ID. It is safe for concurrent use; every mutation is serialised behind a
// single mutex, which the spec explicitly allows ("a single mutex per
// BucketList is sufficient").
type BucketList struct {
	self ID

	mu        sync.Mutex
	buckets   [NumBuckets]kbucket
	diversity DiversityPolicy
}

// NewBucketList creates an empty routing table for the given local ID.
func NewBucketList(self ID) *BucketList {
	return &BucketList{self: self}
}

// SetDiversityPolicy installs an anti-eclipse subnet cap.
func (bl *BucketList) SetDiversityPolicy(p DiversityPolicy) {
	bl.mu.Lock()
	bl.diversity = p
	bl.mu.Unlock()
}

func (bl *BucketList) bucketIndex(id ID) int {
	return BucketIndex(bl.self, id)
}

// Contains reports whether id is currently in the routing table.
func (bl *BucketList) Contains(id ID) bool {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	bi := bl.bucketIndex(id)
	if bi < 0 {
		return false
	}
	return indexOf(bl.buckets[bi].contacts, id) >= 0
}

// Get returns the contact stored for id, if any.
func (bl *BucketList) Get(id ID) (Contact, bool) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	bi := bl.bucketIndex(id)
	if bi < 0 {
		return Contact{}, false
	}
	b := bl.buckets[bi]
	if i := indexOf(b.contacts, id); i >= 0 {
		return b.contacts[i].Contact, true
	}
	return Contact{}, false
}

// Put inserts or updates a contact without any PING-based admission check.
// Callers that must respect PING-based eviction should use SawContact (see
// admission.go) instead; Put is what admit calls once it has decided to
// insert (free capacity, or a blocker that failed its PING), and is also
// used for seeding. The diversity cap, when set, can still reject a new
// contact, and the local ID is never stored.
func (bl *BucketList) Put(c Contact) {
	if c.ID == bl.self {
		return
	}
	bl.mu.Lock()
	defer bl.mu.Unlock()
	bi := bl.bucketIndex(c.ID)
	if bi < 0 {
		return
	}
	b := &bl.buckets[bi]
	now := time.Now()
	if i := indexOf(b.contacts, c.ID); i >= 0 {
		tc := b.contacts[i]
		tc.Contact = c
		tc.LastSeen = now
		b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
		b.contacts = append([]timedContact{tc}, b.contacts...)
		return
	}
	if bl.diversity.MaxPerSubnet > 0 {
		sk := subnetKey(c.Endpoint)
		if sk != "" {
			cnt := 0
			for _, tc := range b.contacts {
				if subnetKey(tc.Contact.Endpoint) == sk {
					cnt++
				}
			}
			if cnt >= bl.diversity.MaxPerSubnet {
				return
			}
		}
	}
	tc := timedContact{Contact: c, LastSeen: now}
	if len(b.contacts) < K {
		b.contacts = append([]timedContact{tc}, b.contacts...)
		return
	}
	// Bucket is full: drop the oldest to make room. Admission policy
	// (ping the blocker first) lives in SawContact; a direct Put that gets
	// past the diversity cap evicts without pinging, matching the teacher's
	// trusted-insert semantics.
	b.contacts = b.contacts[:len(b.contacts)-1]
	b.contacts = append([]timedContact{tc}, b.contacts...)
}

// Promote moves id to the most-recently-seen position in its bucket.
func (bl *BucketList) Promote(id ID) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	bi := bl.bucketIndex(id)
	if bi < 0 {
		return
	}
	b := &bl.buckets[bi]
	i := indexOf(b.contacts, id)
	if i <= 0 {
		return
	}
	tc := b.contacts[i]
	tc.LastSeen = time.Now()
	b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
	b.contacts = append([]timedContact{tc}, b.contacts...)
}

// Remove deletes id from the routing table, if present.
func (bl *BucketList) Remove(id ID) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	bi := bl.bucketIndex(id)
	if bi < 0 {
		return
	}
	b := &bl.buckets[bi]
	if i := indexOf(b.contacts, id); i >= 0 {
		b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
	}
}

// Blocker returns the stalest contact in id's bucket — the one that would
// be evicted to make room — if that bucket is at capacity. It returns
// false if the bucket has room (no eviction needed).
func (bl *BucketList) Blocker(id ID) (Contact, bool) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	bi := bl.bucketIndex(id)
	if bi < 0 {
		return Contact{}, false
	}
	b := bl.buckets[bi]
	if len(b.contacts) < K {
		return Contact{}, false
	}
	return b.contacts[len(b.contacts)-1].Contact, true
}

// Touch updates the lastLookup timestamp of the bucket id falls into.
func (bl *BucketList) Touch(id ID) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	bi := bl.bucketIndex(id)
	if bi < 0 {
		return
	}
	bl.buckets[bi].lastLookup = time.Now()
}

// CloseContactsN returns the n contacts closest to target by XOR distance,
// excluding excludeID if it is non-zero.
func (bl *BucketList) CloseContactsN(n int, target ID, excludeID ID) []Contact {
	if n <= 0 {
		n = K
	}
	bl.mu.Lock()
	all := make([]Contact, 0, NumBuckets)
	for i := range bl.buckets {
		for _, tc := range bl.buckets[i].contacts {
			if tc.Contact.ID == excludeID {
				continue
			}
			all = append(all, tc.Contact)
		}
	}
	bl.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return DistanceLess(all[i].ID, all[j].ID, target)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// CloseContacts returns the K contacts closest to target, excluding
// excludeID.
func (bl *BucketList) CloseContacts(target ID, excludeID ID) []Contact {
	return bl.CloseContactsN(K, target, excludeID)
}

// IDsForRefresh returns, for every bucket whose lastLookup predates
// threshold, a random ID within that bucket's range — the seed for a
// bucket-refresh IterativeFindNode.
func (bl *BucketList) IDsForRefresh(threshold time.Time) []ID {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	var out []ID
	for i := range bl.buckets {
		if len(bl.buckets[i].contacts) == 0 {
			continue
		}
		if bl.buckets[i].lastLookup.Before(threshold) {
			out = append(out, RandomIDInBucket(bl.self, i))
		}
	}
	return out
}

// Size returns the total number of contacts across all buckets.
func (bl *BucketList) Size() int {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	n := 0
	for i := range bl.buckets {
		n += len(bl.buckets[i].contacts)
	}
	return n
}

// BucketSize returns the occupancy of a single bucket, for metrics.
func (bl *BucketList) BucketSize(i int) int {
	if i < 0 || i >= NumBuckets {
		return 0
	}
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return len(bl.buckets[i].contacts)
}

// subnetKey extracts the /24 (IPv4) or /64 (IPv6) network an endpoint's
// host resolves to, for the diversity cap. An endpoint without a port is
// treated as a bare host. It returns "" when the host is not an IP literal,
// which disables the cap for that contact rather than rejecting it.
func subnetKey(endpoint string) string {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		host = endpoint
	}
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(64, 128)).String()
}

func indexOf(contacts []timedContact, id ID) int {
	for i, tc := range contacts {
		if tc.Contact.ID == id {
			return i
		}
	}
	return -1
}
