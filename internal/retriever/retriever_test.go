package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
)

type stubEmbedder struct {
	vec []float64
	err error
}

func (s *stubEmbedder) Name() string   { return "stub" }
func (s *stubEmbedder) Dimension() int { return len(s.vec) }
func (s *stubEmbedder) Embed(context.Context, string) ([]float64, error) {
	return s.vec, s.err
}
func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, s.err
}

type stubStore struct {
	results   []domain.RetrievalResult
	searchErr error
	gotFilter domain.Filter
	gotK      int
}

func (s *stubStore) Init(context.Context, int) error                        { return nil }
func (s *stubStore) Upsert(context.Context, []domain.EmbeddingRecord) error { return nil }
func (s *stubStore) Search(_ context.Context, _ []float64, k int, f domain.Filter) ([]domain.RetrievalResult, error) {
	s.gotFilter = f
	s.gotK = k
	return s.results, s.searchErr
}
func (s *stubStore) Scroll(context.Context, domain.Filter, int, string) ([]domain.EmbeddingRecord, string, error) {
	return nil, "", nil
}
func (s *stubStore) DeleteByFilter(context.Context, domain.Filter) error { return nil }
func (s *stubStore) PurgeDeleted(context.Context, time.Time) (int, error) {
	return 0, nil
}

func TestRetrieve_PassesOwnerFilter(t *testing.T) {
	store := &stubStore{results: []domain.RetrievalResult{{Score: 0.9}}}
	r := New(&stubEmbedder{vec: []float64{1, 0}}, store, 3)

	results, err := r.Retrieve(context.Background(), "question", "u1", domain.Filter{SourceID: "src"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "u1", store.gotFilter.OwnerID)
	assert.Equal(t, "src", store.gotFilter.SourceID)
	assert.Equal(t, 3, store.gotK)
}

func TestRetrieve_OwnerCannotBeOverridden(t *testing.T) {
	store := &stubStore{}
	r := New(&stubEmbedder{vec: []float64{1, 0}}, store, 3)

	_, err := r.Retrieve(context.Background(), "question", "u1", domain.Filter{OwnerID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "u1", store.gotFilter.OwnerID)
}

func TestRetrieve_EmbeddingFailureAborts(t *testing.T) {
	r := New(&stubEmbedder{err: errors.New("boom")}, &stubStore{}, 3)
	_, err := r.Retrieve(context.Background(), "question", "u1", domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestRetrieve_StoreOutageDegradesToEmpty(t *testing.T) {
	store := &stubStore{searchErr: domain.ErrStoreUnavailable}
	r := New(&stubEmbedder{vec: []float64{1, 0}}, store, 3)

	results, err := r.Retrieve(context.Background(), "question", "u1", domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_OtherStoreErrorsPropagate(t *testing.T) {
	store := &stubStore{searchErr: domain.ErrInvalidInput}
	r := New(&stubEmbedder{vec: []float64{1, 0}}, store, 3)

	_, err := r.Retrieve(context.Background(), "question", "u1", domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetrieve_Validation(t *testing.T) {
	r := New(&stubEmbedder{vec: []float64{1, 0}}, &stubStore{}, 3)
	_, err := r.Retrieve(context.Background(), "", "u1", domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = r.Retrieve(context.Background(), "question", "", domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
