// Package repository implements the keyword-indexed content repository: a
// persistent store mapping normalized keyword entries to resource records,
// and resource records to the peer endpoints known to serve them.
package repository

import "time"

// CompleteTag is the track metadata a Put call indexes.
type CompleteTag struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	TagHash string `json:"tag_hash"`
}

// URLEntry is one peer's claim to serve a resource, with the time it last
// asserted that claim.
type URLEntry struct {
	Endpoint        string    `json:"endpoint"`
	PublicationTime time.Time `json:"publication_time"`
}

// ResourceRecord is the stored value: track metadata plus every endpoint
// known to serve it.
type ResourceRecord struct {
	ID   string      `json:"id"` // tagHash
	Tag  CompleteTag `json:"tag"`
	URLs []URLEntry  `json:"urls"`
}

// KeywordEntry is an inverted-index row: a normalized keyword mapped to
// every resource id whose metadata produced it.
type KeywordEntry struct {
	ID   string   `json:"id"` // "keyword/" + normalized keyword
	Tags []string `json:"tags"`
}
