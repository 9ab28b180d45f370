// Package memory provides an in-memory vector store using brute-force cosine
// similarity. It mirrors the qdrant adapter's filter and tombstone semantics
// so the two are interchangeable in tests and local runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"ragpipe/internal/domain"
)

// Store is a thread-safe in-memory vector store.
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]domain.EmbeddingRecord
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{records: make(map[string]domain.EmbeddingRecord)}
}

// Init fixes the collection dimension. Re-initializing with a different
// dimension fails rather than silently mixing vector sizes.
func (s *Store) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrInvalidInput, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return fmt.Errorf("%w: dimension %d does not match existing %d", domain.ErrInvalidInput, dimension, s.dimension)
	}
	s.dimension = dimension
	return nil
}

// Upsert replaces any existing record with the same ID.
func (s *Store) Upsert(_ context.Context, records []domain.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == "" || r.OwnerID == "" {
			return fmt.Errorf("%w: record requires id and owner", domain.ErrInvalidInput)
		}
		if s.dimension != 0 && len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: vector dimension %d, want %d", domain.ErrInvalidInput, len(r.Vector), s.dimension)
		}
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

// Search returns up to k matches ordered by descending similarity, ties
// broken by most recent CreatedAt, then ID.
func (s *Store) Search(_ context.Context, vector []float64, k int, f domain.Filter) ([]domain.RetrievalResult, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rec   domain.EmbeddingRecord
		score float64
	}
	var hits []scored
	for _, r := range s.records {
		if !matches(r, f) {
			continue
		}
		hits = append(hits, scored{rec: r, score: cosine(r.Vector, vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if !hits[i].rec.CreatedAt.Equal(hits[j].rec.CreatedAt) {
			return hits[i].rec.CreatedAt.After(hits[j].rec.CreatedAt)
		}
		return hits[i].rec.ID < hits[j].rec.ID
	})
	if k > len(hits) {
		k = len(hits)
	}
	results := make([]domain.RetrievalResult, 0, k)
	for i := 0; i < k; i++ {
		results = append(results, domain.RetrievalResult{
			Chunk: recordChunk(hits[i].rec),
			Score: hits[i].score,
			Rank:  i,
		})
	}
	return results, nil
}

// Scroll lists matching records in stable ID order, paginated by cursor.
func (s *Store) Scroll(_ context.Context, f domain.Filter, limit int, cursor string) ([]domain.EmbeddingRecord, string, error) {
	if err := validateFilter(f); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id, r := range s.records {
		if matches(r, f) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, "", fmt.Errorf("%w: bad scroll cursor %q", domain.ErrInvalidInput, cursor)
		}
		start = n
	}
	if start >= len(ids) {
		return nil, "", nil
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}
	page := make([]domain.EmbeddingRecord, 0, end-start)
	for _, id := range ids[start:end] {
		page = append(page, s.records[id])
	}
	next := ""
	if end < len(ids) {
		next = strconv.Itoa(end)
	}
	return page, next, nil
}

// DeleteByFilter tombstones matching records.
func (s *Store) DeleteByFilter(_ context.Context, f domain.Filter) error {
	if err := validateFilter(f); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, r := range s.records {
		if matches(r, f) {
			r.IsDeleted = true
			r.DeletedAt = now
			s.records[id] = r
		}
	}
	return nil
}

// PurgeDeleted physically removes records tombstoned before the cutoff.
func (s *Store) PurgeDeleted(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, r := range s.records {
		if r.IsDeleted && r.DeletedAt.Before(olderThan) {
			delete(s.records, id)
			purged++
		}
	}
	return purged, nil
}

func validateFilter(f domain.Filter) error {
	if f.OwnerID == "" {
		return fmt.Errorf("%w: filter requires owner", domain.ErrInvalidInput)
	}
	return nil
}

func matches(r domain.EmbeddingRecord, f domain.Filter) bool {
	if r.OwnerID != f.OwnerID {
		return false
	}
	if f.SourceID != "" && r.SourceID != f.SourceID {
		return false
	}
	if f.Modality != "" && r.Modality != f.Modality {
		return false
	}
	if !f.IncludeDeleted && r.IsDeleted {
		return false
	}
	return true
}

func recordChunk(r domain.EmbeddingRecord) domain.Chunk {
	return domain.Chunk{
		OwnerID:    r.OwnerID,
		SourceID:   r.SourceID,
		SourceName: r.SourceName,
		Index:      r.ChunkIndex,
		Text:       r.Text,
		Modality:   r.Modality,
		CreatedAt:  r.CreatedAt,
	}
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dot, na, nb := 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ domain.VectorStore = (*Store)(nil)
