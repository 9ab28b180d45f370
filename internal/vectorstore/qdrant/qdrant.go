// Package qdrant is a REST adapter to a Qdrant vector store. It assumes
// cosine distance and creates the collection if missing. Deletes tombstone
// records via a payload update; physical removal happens in PurgeDeleted.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"ragpipe/internal/domain"
)

// Store is a minimal REST client to Qdrant.
type Store struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// Config contains connection details for a Qdrant vector store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewStore creates a Qdrant-backed vector store.
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection if it does not exist.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrInvalidInput, dimension)
	}
	s.dimension = dimension
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 if the collection already exists with this schema
	return s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", s.collection), body, nil)
}

// Upsert writes records with their payloads; existing IDs are replaced.
func (s *Store) Upsert(ctx context.Context, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		if r.ID == "" || r.OwnerID == "" {
			return fmt.Errorf("%w: record requires id and owner", domain.ErrInvalidInput)
		}
		points[i] = map[string]any{
			"id":     r.ID,
			"vector": r.Vector,
			"payload": map[string]any{
				"owner_id":    r.OwnerID,
				"source_id":   r.SourceID,
				"source_name": r.SourceName,
				"chunk_index": r.ChunkIndex,
				"text":        r.Text,
				"modality":    string(r.Modality),
				"mime_type":   r.MimeType,
				"is_deleted":  r.IsDeleted,
				"created_at":  r.CreatedAt.Unix(),
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", s.collection), body, nil)
}

// Search runs a filtered nearest-neighbour query. Qdrant orders by score;
// ties are re-broken client-side by most recent created_at, then ID.
func (s *Store) Search(ctx context.Context, vector []float64, k int, f domain.Filter) ([]domain.RetrievalResult, error) {
	qf, err := buildFilter(f)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter":       qf,
	}
	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), req, &resp); err != nil {
		return nil, err
	}
	type hit struct {
		id    string
		score float64
		rec   domain.EmbeddingRecord
	}
	hits := make([]hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		rec := payloadRecord(r.ID, r.Payload)
		hits = append(hits, hit{id: r.ID, score: r.Score, rec: rec})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if !hits[i].rec.CreatedAt.Equal(hits[j].rec.CreatedAt) {
			return hits[i].rec.CreatedAt.After(hits[j].rec.CreatedAt)
		}
		return hits[i].id < hits[j].id
	})
	results := make([]domain.RetrievalResult, 0, len(hits))
	for i, h := range hits {
		results = append(results, domain.RetrievalResult{
			Chunk: domain.Chunk{
				OwnerID:    h.rec.OwnerID,
				SourceID:   h.rec.SourceID,
				SourceName: h.rec.SourceName,
				Index:      h.rec.ChunkIndex,
				Text:       h.rec.Text,
				Modality:   h.rec.Modality,
				CreatedAt:  h.rec.CreatedAt,
			},
			Score: h.score,
			Rank:  i,
		})
	}
	return results, nil
}

// Scroll pages through matching records using Qdrant's scroll cursor.
func (s *Store) Scroll(ctx context.Context, f domain.Filter, limit int, cursor string) ([]domain.EmbeddingRecord, string, error) {
	qf, err := buildFilter(f)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"filter":       qf,
	}
	if cursor != "" {
		req["offset"] = cursor
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID      string         `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
			NextPageOffset any `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", s.collection), req, &resp); err != nil {
		return nil, "", err
	}
	records := make([]domain.EmbeddingRecord, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		records = append(records, payloadRecord(p.ID, p.Payload))
	}
	next := ""
	if resp.Result.NextPageOffset != nil {
		next = fmt.Sprintf("%v", resp.Result.NextPageOffset)
	}
	return records, next, nil
}

// DeleteByFilter tombstones matching records by setting is_deleted in their
// payloads, keeping them visible for audit until purged.
func (s *Store) DeleteByFilter(ctx context.Context, f domain.Filter) error {
	qf, err := buildFilter(f)
	if err != nil {
		return err
	}
	body := map[string]any{
		"payload": map[string]any{
			"is_deleted": true,
			"deleted_at": time.Now().Unix(),
		},
		"filter": qf,
	}
	return s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/payload?wait=true", s.collection), body, nil)
}

// PurgeDeleted physically removes records tombstoned before the cutoff.
func (s *Store) PurgeDeleted(ctx context.Context, olderThan time.Time) (int, error) {
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "is_deleted", "match": map[string]any{"value": true}},
			{"key": "deleted_at", "range": map[string]any{"lt": olderThan.Unix()}},
		},
	}
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", s.collection),
		map[string]any{"filter": filter, "exact": true}, &countResp); err != nil {
		return 0, err
	}
	if countResp.Result.Count == 0 {
		return 0, nil
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection),
		map[string]any{"filter": filter}, nil); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

// buildFilter translates a domain filter into Qdrant's must-clause shape.
// Owner match is mandatory and cannot be bypassed.
func buildFilter(f domain.Filter) (map[string]any, error) {
	if f.OwnerID == "" {
		return nil, fmt.Errorf("%w: filter requires owner", domain.ErrInvalidInput)
	}
	must := []map[string]any{
		{"key": "owner_id", "match": map[string]any{"value": f.OwnerID}},
	}
	if f.SourceID != "" {
		must = append(must, map[string]any{"key": "source_id", "match": map[string]any{"value": f.SourceID}})
	}
	if f.Modality != "" {
		must = append(must, map[string]any{"key": "modality", "match": map[string]any{"value": string(f.Modality)}})
	}
	if !f.IncludeDeleted {
		must = append(must, map[string]any{"key": "is_deleted", "match": map[string]any{"value": false}})
	}
	return map[string]any{"must": must}, nil
}

func payloadRecord(id string, payload map[string]any) domain.EmbeddingRecord {
	rec := domain.EmbeddingRecord{ID: id}
	if v, ok := payload["owner_id"].(string); ok {
		rec.OwnerID = v
	}
	if v, ok := payload["source_id"].(string); ok {
		rec.SourceID = v
	}
	if v, ok := payload["source_name"].(string); ok {
		rec.SourceName = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		rec.ChunkIndex = int(v)
	}
	if v, ok := payload["text"].(string); ok {
		rec.Text = v
	}
	if v, ok := payload["modality"].(string); ok {
		rec.Modality = domain.Modality(v)
	}
	if v, ok := payload["mime_type"].(string); ok {
		rec.MimeType = v
	}
	if v, ok := payload["is_deleted"].(bool); ok {
		rec.IsDeleted = v
	}
	if v, ok := payload["created_at"].(float64); ok {
		rec.CreatedAt = time.Unix(int64(v), 0)
	}
	if v, ok := payload["deleted_at"].(float64); ok {
		rec.DeletedAt = time.Unix(int64(v), 0)
	}
	return rec
}

// do sends a JSON request. Network failures and 5xx map to
// ErrStoreUnavailable; other non-2xx statuses surface as plain errors.
func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s %s: %s", domain.ErrStoreUnavailable, method, path, resp.Status)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ domain.VectorStore = (*Store)(nil)
