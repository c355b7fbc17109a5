package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketResources  = []byte("resources")
	bucketKeywords   = []byte("keywords")
	bucketKeysByTag  = []byte("keys_by_tag") // resourceId -> []keywordId
	bucketEmptyKeys  = []byte("empty_keys")  // keywordId -> struct{} (present iff tags empty)
)

// Store is the bbolt-backed persistence layer behind KeywordIndex and
// ResourceStore: two logical collections (resources, keyword entries) plus
// the KeysByTag and EmptyKeys secondary indices named by the external
// interface.
type Store struct {
	db *bbolt.DB
}

// Open creates (or reuses) the bbolt file at path and ensures every bucket
// this store needs exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketResources, bucketKeywords, bucketKeysByTag, bucketEmptyKeys} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close disposes the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) getResource(tx *bbolt.Tx, id string) (ResourceRecord, bool, error) {
	raw := tx.Bucket(bucketResources).Get([]byte(id))
	if raw == nil {
		return ResourceRecord{}, false, nil
	}
	var rec ResourceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ResourceRecord{}, false, err
	}
	return rec, true, nil
}

func putResource(tx *bbolt.Tx, rec ResourceRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketResources).Put([]byte(rec.ID), b)
}

func deleteResource(tx *bbolt.Tx, id string) error {
	return tx.Bucket(bucketResources).Delete([]byte(id))
}

func (s *Store) getKeyword(tx *bbolt.Tx, id string) (KeywordEntry, bool, error) {
	raw := tx.Bucket(bucketKeywords).Get([]byte(id))
	if raw == nil {
		return KeywordEntry{}, false, nil
	}
	var ke KeywordEntry
	if err := json.Unmarshal(raw, &ke); err != nil {
		return KeywordEntry{}, false, err
	}
	return ke, true, nil
}

func putKeyword(tx *bbolt.Tx, ke KeywordEntry) error {
	b, err := json.Marshal(ke)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketKeywords).Put([]byte(ke.ID), b); err != nil {
		return err
	}
	empty := tx.Bucket(bucketEmptyKeys)
	if len(ke.Tags) == 0 {
		return empty.Put([]byte(ke.ID), []byte{1})
	}
	return empty.Delete([]byte(ke.ID))
}

func deleteKeyword(tx *bbolt.Tx, id string) error {
	if err := tx.Bucket(bucketKeywords).Delete([]byte(id)); err != nil {
		return err
	}
	return tx.Bucket(bucketEmptyKeys).Delete([]byte(id))
}

func getKeysByTag(tx *bbolt.Tx, resourceID string) ([]string, error) {
	raw := tx.Bucket(bucketKeysByTag).Get([]byte(resourceID))
	if raw == nil {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func putKeysByTag(tx *bbolt.Tx, resourceID string, keys []string) error {
	b, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketKeysByTag).Put([]byte(resourceID), b)
}

func deleteKeysByTag(tx *bbolt.Tx, resourceID string) error {
	return tx.Bucket(bucketKeysByTag).Delete([]byte(resourceID))
}

// StoreResource implements §4.3's StoreResource: add the endpoint to an
// existing record, or create the record and fan its keywords into the
// index. It returns ErrDuplicateKey, wrapping nothing else, when endpoint
// already claims resourceID; callers that treat a repeat store as routine
// (a republish, a retried STORE_DATA) should check for it with errors.Is
// rather than logging it as a failure.
func (s *Store) StoreResource(tag CompleteTag, endpoint string, now time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec, ok, err := s.getResource(tx, tag.TagHash)
		if err != nil {
			return err
		}
		if ok {
			for _, u := range rec.URLs {
				if u.Endpoint == endpoint {
					return ErrDuplicateKey
				}
			}
			rec.URLs = append(rec.URLs, URLEntry{Endpoint: endpoint, PublicationTime: now})
			return putResource(tx, rec)
		}

		rec = ResourceRecord{
			ID:   tag.TagHash,
			Tag:  tag,
			URLs: []URLEntry{{Endpoint: endpoint, PublicationTime: now}},
		}
		if err := putResource(tx, rec); err != nil {
			return err
		}

		keywords := generateKeywords(tag)
		for _, kid := range keywords {
			ke, _, err := s.getKeyword(tx, kid)
			if err != nil {
				return err
			}
			if ke.ID == "" {
				ke = KeywordEntry{ID: kid}
			}
			if !containsString(ke.Tags, rec.ID) {
				ke.Tags = append(ke.Tags, rec.ID)
			}
			if err := putKeyword(tx, ke); err != nil {
				return err
			}
		}
		return putKeysByTag(tx, rec.ID, keywords)
	})
}

// DeleteTag removes resourceID from every keyword's tags and prunes
// keywords left with an empty tag set.
func (s *Store) DeleteTag(resourceID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		keys, err := getKeysByTag(tx, resourceID)
		if err != nil {
			return err
		}
		for _, kid := range keys {
			ke, ok, err := s.getKeyword(tx, kid)
			if err != nil || !ok {
				continue
			}
			ke.Tags = removeString(ke.Tags, resourceID)
			if len(ke.Tags) == 0 {
				if err := deleteKeyword(tx, kid); err != nil {
					return err
				}
				continue
			}
			if err := putKeyword(tx, ke); err != nil {
				return err
			}
		}
		if err := deleteKeysByTag(tx, resourceID); err != nil {
			return err
		}
		return deleteResource(tx, resourceID)
	})
}

// ContainsUrl reports whether resourceID's record already claims endpoint.
func (s *Store) ContainsUrl(resourceID, endpoint string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		rec, ok, err := s.getResource(tx, resourceID)
		if err != nil || !ok {
			return err
		}
		for _, u := range rec.URLs {
			if u.Endpoint == endpoint {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// GetPublicationTime returns the publication time recorded for
// (resourceID, endpoint), if any.
func (s *Store) GetPublicationTime(resourceID, endpoint string) (time.Time, bool, error) {
	var t time.Time
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		rec, found, err := s.getResource(tx, resourceID)
		if err != nil || !found {
			return err
		}
		for _, u := range rec.URLs {
			if u.Endpoint == endpoint {
				t, ok = u.PublicationTime, true
				return nil
			}
		}
		return nil
	})
	return t, ok, err
}

// RefreshResource updates the publication time for (resourceID, endpoint)
// in place, without touching the keyword index.
func (s *Store) RefreshResource(resourceID, endpoint string, newPublication time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec, ok, err := s.getResource(tx, resourceID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrMissingKey
		}
		for i := range rec.URLs {
			if rec.URLs[i].Endpoint == endpoint {
				rec.URLs[i].PublicationTime = newPublication
				return putResource(tx, rec)
			}
		}
		return ErrMissingKey
	})
}

// Get loads a single resource record by id.
func (s *Store) Get(resourceID string) (ResourceRecord, bool, error) {
	var rec ResourceRecord
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, ok, err = s.getResource(tx, resourceID)
		return err
	})
	return rec, ok, err
}

// GetAllElements iterates every resource record, for the replication loop.
func (s *Store) GetAllElements() ([]ResourceRecord, error) {
	var out []ResourceRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResources).ForEach(func(_, v []byte) error {
			var rec ResourceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// Expire removes endpoints whose publication predates now-expireAfter, and
// deletes resources left with no urls (pruning their keywords too).
func (s *Store) Expire(now time.Time, expireAfter time.Duration) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		// Collect the outcome of every record first; ForEach's contract
		// forbids mutating the bucket it is iterating.
		var toDelete []string
		var toUpdate []ResourceRecord
		err := tx.Bucket(bucketResources).ForEach(func(k, v []byte) error {
			var rec ResourceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			kept := make([]URLEntry, 0, len(rec.URLs))
			for _, u := range rec.URLs {
				if now.Sub(u.PublicationTime) <= expireAfter {
					kept = append(kept, u)
				}
			}
			rec.URLs = kept
			if len(rec.URLs) == 0 {
				toDelete = append(toDelete, rec.ID)
				return nil
			}
			toUpdate = append(toUpdate, rec)
			return nil
		})
		if err != nil {
			return err
		}
		for _, rec := range toUpdate {
			if err := putResource(tx, rec); err != nil {
				return err
			}
		}
		for _, id := range toDelete {
			keys, err := getKeysByTag(tx, id)
			if err != nil {
				return err
			}
			for _, kid := range keys {
				ke, ok, err := s.getKeyword(tx, kid)
				if err != nil || !ok {
					continue
				}
				ke.Tags = removeString(ke.Tags, id)
				if len(ke.Tags) == 0 {
					if err := deleteKeyword(tx, kid); err != nil {
						return err
					}
					continue
				}
				if err := putKeyword(tx, ke); err != nil {
					return err
				}
			}
			if err := deleteKeysByTag(tx, id); err != nil {
				return err
			}
			if err := deleteResource(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(ss []string, v string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
