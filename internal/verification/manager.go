package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// CacheManager keeps one embedding cache per class, warmed lazily from the
// store on first use. Enrollment updates go through InvalidateStudent so a
// running session picks up re-enrolled faces without a restart.
type CacheManager struct {
	store database.EmbeddingStore

	mu     sync.Mutex
	caches map[string]*EmbeddingCache
}

// NewCacheManager creates a manager backed by the given store.
func NewCacheManager(store database.EmbeddingStore) *CacheManager {
	return &CacheManager{
		store:  store,
		caches: make(map[string]*EmbeddingCache),
	}
}

// ForClass returns the cache for a class, warming it from the store on the
// first call.
func (m *CacheManager) ForClass(ctx context.Context, classID string) (*EmbeddingCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cache, ok := m.caches[classID]; ok {
		return cache, nil
	}

	cache, err := m.warm(ctx, classID)
	if err != nil {
		return nil, err
	}
	m.caches[classID] = cache
	return cache, nil
}

// Refresh discards and rebuilds the cache for a class.
func (m *CacheManager) Refresh(ctx context.Context, classID string) error {
	cache, err := m.warm(ctx, classID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.caches[classID] = cache
	m.mu.Unlock()
	return nil
}

// InvalidateStudent applies an updated enrollment to the class cache. A
// class that has no warmed cache yet needs nothing; it will pick the new
// embedding up on first use.
func (m *CacheManager) InvalidateStudent(ctx context.Context, classID, studentID string) error {
	m.mu.Lock()
	cache, ok := m.caches[classID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	embedding, err := m.store.GetActiveEmbedding(ctx, studentID)
	if errors.Is(err, database.ErrNotFound) {
		cache.Invalidate(studentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load embedding for student %s: %w", studentID, err)
	}

	position := int64(0)
	if existing := cache.Get(studentID); existing != nil {
		position = existing.Position
	} else {
		students, err := m.store.GetEnrolledStudents(ctx, classID)
		if err != nil {
			return fmt.Errorf("could not load roster for class %s: %w", classID, err)
		}
		for _, s := range students {
			if s.StudentID == studentID {
				position = s.Position
				break
			}
		}
	}

	cache.Put(CacheEntry{
		StudentID: studentID,
		Embedding: embedding.Embedding,
		Version:   embedding.Version,
		Position:  position,
	})
	return nil
}

func (m *CacheManager) warm(ctx context.Context, classID string) (*EmbeddingCache, error) {
	students, err := m.store.GetEnrolledStudents(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("could not load roster for class %s: %w", classID, err)
	}
	embeddings, err := m.store.ListActiveEmbeddings(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("could not load embeddings for class %s: %w", classID, err)
	}
	byStudent := make(map[string]database.StoredEmbedding, len(embeddings))
	for _, e := range embeddings {
		byStudent[e.StudentID] = e
	}

	cache := NewEmbeddingCache()
	for _, student := range students {
		embedding, ok := byStudent[student.StudentID]
		if !ok {
			// Enrolled without face data, cannot be matched.
			continue
		}
		cache.Put(CacheEntry{
			StudentID: student.StudentID,
			Embedding: embedding.Embedding,
			Version:   embedding.Version,
			Position:  student.Position,
		})
	}
	log.Printf("warmed embedding cache for class %s: %d students", classID, cache.Len())
	return cache, nil
}
