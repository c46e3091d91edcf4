package milvus

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/pkg/errors"
)

// fakeVectorAPI implements VectorAPI with overridable behavior per method.
type fakeVectorAPI struct {
	hasCollectionFunc func(ctx context.Context, name string) (bool, error)
	searchFunc        func(ctx context.Context, collName string, vectors []entity.Vector, topK int) ([]client.SearchResult, error)

	created  []string
	indexed  []string
	loaded   []string
	inserted []entity.Column
	flushed  []string
	deleted  []string
}

func (f *fakeVectorAPI) HasCollection(ctx context.Context, name string) (bool, error) {
	if f.hasCollectionFunc != nil {
		return f.hasCollectionFunc(ctx, name)
	}
	return false, nil
}

func (f *fakeVectorAPI) CreateCollection(_ context.Context, schema *entity.Schema, _ int32, _ ...client.CreateCollectionOption) error {
	f.created = append(f.created, schema.CollectionName)
	return nil
}

func (f *fakeVectorAPI) CreateIndex(_ context.Context, collName, fieldName string, _ entity.Index, _ bool, _ ...client.IndexOption) error {
	f.indexed = append(f.indexed, collName+"/"+fieldName)
	return nil
}

func (f *fakeVectorAPI) LoadCollection(_ context.Context, collName string, _ bool, _ ...client.LoadCollectionOption) error {
	f.loaded = append(f.loaded, collName)
	return nil
}

func (f *fakeVectorAPI) Insert(_ context.Context, _, _ string, columns ...entity.Column) (entity.Column, error) {
	f.inserted = append(f.inserted, columns...)
	return entity.NewColumnInt64("id", []int64{1}), nil
}

func (f *fakeVectorAPI) Flush(_ context.Context, collName string, _ bool, _ ...client.FlushOption) error {
	f.flushed = append(f.flushed, collName)
	return nil
}

func (f *fakeVectorAPI) Search(ctx context.Context, collName string, _ []string, _ string, _ []string, vectors []entity.Vector, _ string, _ entity.MetricType, topK int, _ entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	if f.searchFunc != nil {
		return f.searchFunc(ctx, collName, vectors, topK)
	}
	return nil, nil
}

func (f *fakeVectorAPI) Delete(_ context.Context, _, _ string, expr string) error {
	f.deleted = append(f.deleted, expr)
	return nil
}

func (f *fakeVectorAPI) Close() error { return nil }

func testIndex(api *fakeVectorAPI) *EmbeddingIndex {
	return NewEmbeddingIndexWithAPI(api, Config{Collection: "mols", Dim: 3}, logging.NewNopLogger())
}

func TestEnsureCollection_CreatesSchemaAndIndex(t *testing.T) {
	api := &fakeVectorAPI{}
	idx := testIndex(api)

	require.NoError(t, idx.ensureCollection(context.Background()))
	assert.Equal(t, []string{"mols"}, api.created)
	assert.Equal(t, []string{"mols/embedding"}, api.indexed)
	assert.Equal(t, []string{"mols"}, api.loaded)
}

func TestEnsureCollection_SkipsExisting(t *testing.T) {
	api := &fakeVectorAPI{
		hasCollectionFunc: func(context.Context, string) (bool, error) { return true, nil },
	}
	idx := testIndex(api)

	require.NoError(t, idx.ensureCollection(context.Background()))
	assert.Empty(t, api.created)
	assert.Empty(t, api.indexed)
	assert.Equal(t, []string{"mols"}, api.loaded)
}

func TestInsert_FlushesAfterWrite(t *testing.T) {
	api := &fakeVectorAPI{}
	idx := testIndex(api)

	err := idx.Insert(context.Background(), []EmbeddingRecord{
		{SMILES: "CCO", RunID: "run-1", Vector: []float32{0.1, 0.2, 0.3}},
		{SMILES: "c1ccccc1", RunID: "run-1", Vector: []float32{0.4, 0.5, 0.6}},
	})
	require.NoError(t, err)

	require.Len(t, api.inserted, 3) // smiles, run_id, embedding columns
	assert.Equal(t, []string{"mols"}, api.flushed)
}

func TestInsert_RejectsDimensionMismatch(t *testing.T) {
	idx := testIndex(&fakeVectorAPI{})

	err := idx.Insert(context.Background(), []EmbeddingRecord{
		{SMILES: "CCO", Vector: []float32{0.1, 0.2}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeShapeMismatch))
}

func TestInsert_EmptyIsNoop(t *testing.T) {
	api := &fakeVectorAPI{}
	idx := testIndex(api)

	require.NoError(t, idx.Insert(context.Background(), nil))
	assert.Empty(t, api.inserted)
	assert.Empty(t, api.flushed)
}

func TestSearch_ConvertsHits(t *testing.T) {
	api := &fakeVectorAPI{
		searchFunc: func(_ context.Context, _ string, _ []entity.Vector, _ int) ([]client.SearchResult, error) {
			return []client.SearchResult{{
				ResultCount: 2,
				Scores:      []float32{0.98, 0.91},
				Fields: client.ResultSet{
					entity.NewColumnVarChar("smiles", []string{"CCO", "CCN"}),
					entity.NewColumnVarChar("run_id", []string{"run-1", "run-1"}),
				},
			}}, nil
		},
	}
	idx := testIndex(api)

	hits, err := idx.Search(context.Background(), []float32{0.1, 0.2, 0.3}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, Hit{SMILES: "CCO", RunID: "run-1", Score: 0.98}, hits[0])
	assert.Equal(t, Hit{SMILES: "CCN", RunID: "run-1", Score: 0.91}, hits[1])
}

func TestSearch_RejectsDimensionMismatch(t *testing.T) {
	idx := testIndex(&fakeVectorAPI{})

	_, err := idx.Search(context.Background(), []float32{0.1}, 5)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeShapeMismatch))
}

func TestDeleteRun_BuildsExpression(t *testing.T) {
	api := &fakeVectorAPI{}
	idx := testIndex(api)

	require.NoError(t, idx.DeleteRun(context.Background(), "run-1"))
	require.Len(t, api.deleted, 1)
	assert.Equal(t, `run_id == "run-1"`, api.deleted[0])
}
