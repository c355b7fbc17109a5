package repository

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.bolt")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testTag() CompleteTag {
	return CompleteTag{
		Title:   "Imagine",
		Artist:  "John Lennon",
		Album:   "Imagine",
		TagHash: "hash-imagine",
	}
}

func TestStoreResourceCreatesRecordAndKeywords(t *testing.T) {
	s := openTestStore(t)
	tag := testTag()
	now := time.Now()

	if err := s.StoreResource(tag, "udp://peerA:9000", now); err != nil {
		t.Fatalf("StoreResource: %v", err)
	}

	rec, ok, err := s.Get(tag.TagHash)
	if err != nil || !ok {
		t.Fatalf("Get after StoreResource: ok=%v err=%v", ok, err)
	}
	if len(rec.URLs) != 1 || rec.URLs[0].Endpoint != "udp://peerA:9000" {
		t.Fatalf("unexpected urls: %+v", rec.URLs)
	}

	for _, kid := range generateKeywords(tag) {
		ke, ok, err := s.getKeywordPublic(kid)
		if err != nil || !ok {
			t.Fatalf("expected keyword entry %s to exist", kid)
		}
		if !containsString(ke.Tags, tag.TagHash) {
			t.Fatalf("keyword %s does not reference resource %s", kid, tag.TagHash)
		}
	}
}

func TestStoreResourceMergesSecondEndpoint(t *testing.T) {
	s := openTestStore(t)
	tag := testTag()
	now := time.Now()

	if err := s.StoreResource(tag, "udp://peerA:9000", now); err != nil {
		t.Fatalf("StoreResource first: %v", err)
	}
	if err := s.StoreResource(tag, "udp://peerB:9000", now); err != nil {
		t.Fatalf("StoreResource second: %v", err)
	}

	rec, ok, err := s.Get(tag.TagHash)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(rec.URLs) != 2 {
		t.Fatalf("expected 2 urls after merging a second endpoint, got %d", len(rec.URLs))
	}
}

func TestStoreResourceIdempotentSameEndpoint(t *testing.T) {
	s := openTestStore(t)
	tag := testTag()
	now := time.Now()

	if err := s.StoreResource(tag, "udp://peerA:9000", now); err != nil {
		t.Fatalf("StoreResource first: %v", err)
	}
	later := now.Add(time.Minute)
	if err := s.StoreResource(tag, "udp://peerA:9000", later); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("StoreResource repeat: expected ErrDuplicateKey, got %v", err)
	}

	rec, ok, err := s.Get(tag.TagHash)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(rec.URLs) != 1 {
		t.Fatalf("expected exactly one url entry for a repeated endpoint, got %d", len(rec.URLs))
	}
}

func TestDeleteTagRemovesFromKeywordsAndPrunesEmpty(t *testing.T) {
	s := openTestStore(t)
	tag := testTag()
	now := time.Now()
	if err := s.StoreResource(tag, "udp://peerA:9000", now); err != nil {
		t.Fatalf("StoreResource: %v", err)
	}

	keywords := generateKeywords(tag)
	if err := s.DeleteTag(tag.TagHash); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}

	if _, ok, _ := s.Get(tag.TagHash); ok {
		t.Fatalf("expected resource to be gone after DeleteTag")
	}
	for _, kid := range keywords {
		if _, ok, _ := s.getKeywordPublic(kid); ok {
			t.Fatalf("expected keyword %s to be pruned after DeleteTag", kid)
		}
	}
}

func TestContainsUrlAndPublicationTime(t *testing.T) {
	s := openTestStore(t)
	tag := testTag()
	now := time.Now().Truncate(time.Second)
	if err := s.StoreResource(tag, "udp://peerA:9000", now); err != nil {
		t.Fatalf("StoreResource: %v", err)
	}

	found, err := s.ContainsUrl(tag.TagHash, "udp://peerA:9000")
	if err != nil || !found {
		t.Fatalf("ContainsUrl: found=%v err=%v", found, err)
	}
	found, err = s.ContainsUrl(tag.TagHash, "udp://absent:9000")
	if err != nil || found {
		t.Fatalf("ContainsUrl should not find an unrelated endpoint")
	}

	pub, ok, err := s.GetPublicationTime(tag.TagHash, "udp://peerA:9000")
	if err != nil || !ok || !pub.Equal(now) {
		t.Fatalf("GetPublicationTime: pub=%v ok=%v err=%v", pub, ok, err)
	}
}

func TestRefreshResourceUpdatesPublicationTimeOnly(t *testing.T) {
	s := openTestStore(t)
	tag := testTag()
	now := time.Now()
	if err := s.StoreResource(tag, "udp://peerA:9000", now); err != nil {
		t.Fatalf("StoreResource: %v", err)
	}

	later := now.Add(time.Hour)
	if err := s.RefreshResource(tag.TagHash, "udp://peerA:9000", later); err != nil {
		t.Fatalf("RefreshResource: %v", err)
	}
	pub, ok, err := s.GetPublicationTime(tag.TagHash, "udp://peerA:9000")
	if err != nil || !ok || !pub.Equal(later) {
		t.Fatalf("expected refreshed publication time %v, got %v (ok=%v err=%v)", later, pub, ok, err)
	}

	if err := s.RefreshResource(tag.TagHash, "udp://absent:9000", later); err != ErrMissingKey {
		t.Fatalf("expected ErrMissingKey for unknown endpoint, got %v", err)
	}
}

func TestExpireDropsStaleEndpointsAndEmptyResources(t *testing.T) {
	s := openTestStore(t)
	tag := testTag()
	now := time.Now()
	stale := now.Add(-48 * time.Hour)
	if err := s.StoreResource(tag, "udp://peerA:9000", stale); err != nil {
		t.Fatalf("StoreResource: %v", err)
	}

	keywords := generateKeywords(tag)
	if err := s.Expire(now, 24*time.Hour); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	if _, ok, _ := s.Get(tag.TagHash); ok {
		t.Fatalf("expected resource with only stale endpoints to be removed")
	}
	for _, kid := range keywords {
		if _, ok, _ := s.getKeywordPublic(kid); ok {
			t.Fatalf("expected keyword %s pruned after Expire removed its only resource", kid)
		}
	}
}

func TestExpireKeepsFreshEndpoints(t *testing.T) {
	s := openTestStore(t)
	tag := testTag()
	now := time.Now()
	if err := s.StoreResource(tag, "udp://peerA:9000", now); err != nil {
		t.Fatalf("StoreResource: %v", err)
	}

	if err := s.Expire(now, 24*time.Hour); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if _, ok, _ := s.Get(tag.TagHash); !ok {
		t.Fatalf("expected fresh resource to survive Expire")
	}
}

func TestGetAllElements(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	tag1 := CompleteTag{Title: "A", Artist: "B", Album: "C", TagHash: "h1"}
	tag2 := CompleteTag{Title: "D", Artist: "E", Album: "F", TagHash: "h2"}
	if err := s.StoreResource(tag1, "udp://a:1", now); err != nil {
		t.Fatalf("StoreResource tag1: %v", err)
	}
	if err := s.StoreResource(tag2, "udp://b:1", now); err != nil {
		t.Fatalf("StoreResource tag2: %v", err)
	}

	all, err := s.GetAllElements()
	if err != nil {
		t.Fatalf("GetAllElements: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(all))
	}
}

// getKeywordPublic wraps the package-private getKeyword in its own
// transaction, for tests that want to inspect keyword entries directly.
func (s *Store) getKeywordPublic(id string) (KeywordEntry, bool, error) {
	var ke KeywordEntry
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		ke, ok, err = s.getKeyword(tx, id)
		return err
	})
	return ke, ok, err
}
