// Package retriever turns a query into an owner-scoped vector search.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ragpipe/internal/domain"
)

// Retriever embeds a query and searches the vector store for the owner's
// nearest chunks.
type Retriever struct {
	embedder domain.Embedder
	store    domain.VectorStore
	topK     int
}

// New creates a retriever. A non-positive topK defaults to 5.
func New(embedder domain.Embedder, store domain.VectorStore, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve returns up to topK chunks for the owner, best match first.
// An embedding failure aborts the query. A store outage degrades to an
// empty result set so answering can proceed without context.
func (r *Retriever) Retrieve(ctx context.Context, query, ownerID string, f domain.Filter) ([]domain.RetrievalResult, error) {
	if query == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: query and owner are required", domain.ErrInvalidInput)
	}
	f.OwnerID = ownerID
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	results, err := r.store.Search(ctx, vec, r.topK, f)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			log.Printf("retriever: store unavailable, answering without context: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return results, nil
}
