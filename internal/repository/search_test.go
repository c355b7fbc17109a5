package repository

import (
	"testing"
	"time"
)

func TestSearchForSubstringMatch(t *testing.T) {
	s := openTestStore(t)
	tag := CompleteTag{Title: "Imagine", Artist: "John Lennon", Album: "Imagine", TagHash: "hash-lennon"}
	if err := s.StoreResource(tag, "udp://peerA:9000", time.Now()); err != nil {
		t.Fatalf("StoreResource: %v", err)
	}

	// "lenn" is a substring of the normalized keyword "lennon", per §9.3.
	results, err := s.SearchFor("lenn")
	if err != nil {
		t.Fatalf("SearchFor: %v", err)
	}
	if len(results) != 1 || results[0].ID != tag.TagHash {
		t.Fatalf("SearchFor(%q) = %+v, want a single match for %s", "lenn", results, tag.TagHash)
	}
}

func TestSearchForNoMatch(t *testing.T) {
	s := openTestStore(t)
	tag := CompleteTag{Title: "Imagine", Artist: "John Lennon", Album: "Imagine", TagHash: "hash-lennon"}
	if err := s.StoreResource(tag, "udp://peerA:9000", time.Now()); err != nil {
		t.Fatalf("StoreResource: %v", err)
	}

	results, err := s.SearchFor("zzzznotpresent")
	if err != nil {
		t.Fatalf("SearchFor: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no matches, got %+v", results)
	}
}

func TestSearchForUnionsAcrossTokens(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	a := CompleteTag{Title: "Imagine", Artist: "John Lennon", Album: "Imagine", TagHash: "hash-a"}
	b := CompleteTag{Title: "The Wall", Artist: "Pink Floyd", Album: "The Wall", TagHash: "hash-b"}
	if err := s.StoreResource(a, "udp://peerA:9000", now); err != nil {
		t.Fatalf("StoreResource a: %v", err)
	}
	if err := s.StoreResource(b, "udp://peerB:9000", now); err != nil {
		t.Fatalf("StoreResource b: %v", err)
	}

	results, err := s.SearchFor("lennon floyd")
	if err != nil {
		t.Fatalf("SearchFor: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both resources via union of matching tokens, got %d", len(results))
	}
}

func TestSearchForEmptyQuery(t *testing.T) {
	s := openTestStore(t)
	results, err := s.SearchFor("   ")
	if err != nil {
		t.Fatalf("SearchFor: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for an empty query, got %+v", results)
	}
}
