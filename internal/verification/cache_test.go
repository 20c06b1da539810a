package verification

import (
	"testing"
)

func entry(id string, pos int64, emb []float32) CacheEntry {
	return CacheEntry{StudentID: id, Embedding: emb, Version: 1, Position: pos}
}

func TestEmbeddingCache_PutGetInvalidate(t *testing.T) {
	cache := NewEmbeddingCache()
	cache.Put(entry("s1", 1, []float32{1, 0, 0}))
	cache.Put(entry("s2", 2, []float32{0, 1, 0}))

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	if got := cache.Get("s1"); got == nil || got.StudentID != "s1" {
		t.Errorf("Get(s1) = %+v", got)
	}

	cache.Invalidate("s1")
	if cache.Get("s1") != nil {
		t.Error("expected s1 to be invalidated")
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 entry after invalidation, got %d", cache.Len())
	}
}

func TestEmbeddingCache_StaleVersionIgnored(t *testing.T) {
	cache := NewEmbeddingCache()
	cache.Put(CacheEntry{StudentID: "s1", Embedding: []float32{1, 0}, Version: 3, Position: 1})
	cache.Put(CacheEntry{StudentID: "s1", Embedding: []float32{0, 1}, Version: 2, Position: 1})

	got := cache.Get("s1")
	if got == nil || got.Version != 3 {
		t.Fatalf("expected version 3 to survive a stale put, got %+v", got)
	}
	if got.Embedding[0] != 1 {
		t.Error("stale put overwrote the newer embedding")
	}
}

func TestEmbeddingCache_SnapshotOrder(t *testing.T) {
	cache := NewEmbeddingCache()
	cache.Put(entry("s3", 3, []float32{0, 0, 1}))
	cache.Put(entry("s1", 1, []float32{1, 0, 0}))
	cache.Put(entry("s2", 2, []float32{0, 1, 0}))

	snapshot := cache.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snapshot))
	}
	for i, want := range []string{"s1", "s2", "s3"} {
		if snapshot[i].StudentID != want {
			t.Errorf("snapshot[%d] = %s, want %s", i, snapshot[i].StudentID, want)
		}
	}
}

func TestResolveFace_BestAboveThreshold(t *testing.T) {
	cache := NewEmbeddingCache()
	cache.Put(entry("s1", 1, []float32{1, 0, 0}))
	cache.Put(entry("s2", 2, []float32{0.9, 0.1, 0}))
	cache.Put(entry("s3", 3, []float32{0, 0, 1}))

	match := ResolveFace(cache, []float32{1, 0, 0}, 0.7)
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.StudentID != "s1" {
		t.Errorf("expected best match s1, got %s", match.StudentID)
	}
	if match.Score < 0.999 {
		t.Errorf("expected near-perfect score, got %f", match.Score)
	}
}

func TestResolveFace_TieBreaksByEnrollmentOrder(t *testing.T) {
	// Two students enrolled with identical embeddings: the first enrolled
	// must win, regardless of map iteration order.
	same := []float32{0.5, 0.5, 0}
	cache := NewEmbeddingCache()
	cache.Put(entry("later", 2, same))
	cache.Put(entry("earlier", 1, same))

	for i := 0; i < 20; i++ {
		match := ResolveFace(cache, same, 0.7)
		if match == nil || match.StudentID != "earlier" {
			t.Fatalf("tie should resolve to first-enrolled student, got %+v", match)
		}
	}
}

func TestResolveFace_NoneAboveThreshold(t *testing.T) {
	cache := NewEmbeddingCache()
	cache.Put(entry("s1", 1, []float32{1, 0, 0}))

	if match := ResolveFace(cache, []float32{0, 1, 0}, 0.7); match != nil {
		t.Errorf("expected no match, got %+v", match)
	}
}

func TestResolveFace_EmptyCache(t *testing.T) {
	cache := NewEmbeddingCache()
	if match := ResolveFace(cache, []float32{1, 0, 0}, 0.5); match != nil {
		t.Errorf("expected no match from empty cache, got %+v", match)
	}
}

func TestResolveFrame_MultipleFaces(t *testing.T) {
	cache := NewEmbeddingCache()
	cache.Put(entry("s1", 1, []float32{1, 0, 0}))
	cache.Put(entry("s2", 2, []float32{0, 1, 0}))

	frames := [][]float32{
		{1, 0, 0},       // s1
		{0, 1, 0},       // s2
		{0, 0, 1},       // nobody
		{0.99, 0.01, 0}, // s1 again, lower score; must not duplicate
	}

	matches := ResolveFrame(cache, frames, 0.7)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}
	if matches[0].StudentID != "s1" || matches[1].StudentID != "s2" {
		t.Errorf("unexpected matches: %+v", matches)
	}
}

func TestResolveFrame_ZeroFaces(t *testing.T) {
	cache := NewEmbeddingCache()
	cache.Put(entry("s1", 1, []float32{1, 0, 0}))

	if matches := ResolveFrame(cache, nil, 0.5); len(matches) != 0 {
		t.Errorf("expected empty result for zero faces, got %+v", matches)
	}
}
