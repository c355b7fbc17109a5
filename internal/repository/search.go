package repository

import (
	"encoding/json"
	"strings"

	"go.etcd.io/bbolt"
)

// SearchFor implements §4.3's keyword search: every query token is matched
// as a substring against normalized (prefix-stripped) keyword ids, not by
// prefix or exact-token equality, mirroring the source's ContainsKeyword
// behavior. Matching entries' tags are unioned and resolved to resource
// records.
func (s *Store) SearchFor(query string) ([]ResourceRecord, error) {
	tokens := make([]string, 0)
	for _, f := range strings.Fields(query) {
		tokens = append(tokens, normalizeQueryToken(f))
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	resourceIDs := make(map[string]struct{})
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKeywords).ForEach(func(k, v []byte) error {
			id := strings.TrimPrefix(string(k), "keyword/")
			matched := false
			for _, tok := range tokens {
				if tok != "" && strings.Contains(id, tok) {
					matched = true
					break
				}
			}
			if !matched {
				return nil
			}
			var ke KeywordEntry
			if err := json.Unmarshal(v, &ke); err != nil {
				return err
			}
			for _, rid := range ke.Tags {
				resourceIDs[rid] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	var out []ResourceRecord
	err = s.db.View(func(tx *bbolt.Tx) error {
		for rid := range resourceIDs {
			rec, ok, err := s.getResource(tx, rid)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}
