// Package milvus maintains a vector index of molecule embeddings so that
// structurally similar compounds can be retrieved by embedding distance.
package milvus

import (
	"context"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/pkg/errors"
)

// VectorAPI is the subset of the Milvus client the embedding index uses.
// client.Client satisfies it; tests inject a fake.
type VectorAPI interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error
	CreateIndex(ctx context.Context, collName, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error
	Insert(ctx context.Context, collName, partitionName string, columns ...entity.Column) (entity.Column, error)
	Flush(ctx context.Context, collName string, async bool, opts ...client.FlushOption) error
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Delete(ctx context.Context, collName, partitionName, expr string) error
	Close() error
}

// Config holds Milvus connection and index settings.
type Config struct {
	Address    string
	Username   string
	Password   string
	Collection string

	// Dim is the embedding dimensionality; it must match the model's
	// graph-gather output width.
	Dim int

	ShardsNum       int32
	IndexM          int
	IndexEfBuild    int
	SearchEf        int
	ConnectTimeout  time.Duration
	MaxSMILESLength int
}

func (c *Config) applyDefaults() {
	if c.Collection == "" {
		c.Collection = "molecule_embeddings"
	}
	if c.ShardsNum == 0 {
		c.ShardsNum = 2
	}
	if c.IndexM == 0 {
		c.IndexM = 16
	}
	if c.IndexEfBuild == 0 {
		c.IndexEfBuild = 200
	}
	if c.SearchEf == 0 {
		c.SearchEf = 64
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxSMILESLength == 0 {
		c.MaxSMILESLength = 512
	}
}

// EmbeddingRecord pairs a molecule with its embedding vector.
type EmbeddingRecord struct {
	SMILES string
	RunID  string
	Vector []float32
}

// Hit is a single similarity search result.
type Hit struct {
	SMILES string
	RunID  string
	Score  float32
}

// EmbeddingIndex stores and searches molecule embeddings.
type EmbeddingIndex struct {
	api    VectorAPI
	cfg    Config
	logger logging.Logger
}

// NewEmbeddingIndex connects to Milvus and prepares the embedding collection.
func NewEmbeddingIndex(ctx context.Context, cfg Config, logger logging.Logger) (*EmbeddingIndex, error) {
	if cfg.Address == "" {
		return nil, errors.New(errors.ErrCodeValidation, "milvus address is required")
	}
	if cfg.Dim <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "embedding dimension must be positive")
	}
	cfg.applyDefaults()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	mc, err := client.NewClient(connectCtx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to milvus")
	}

	idx := &EmbeddingIndex{api: mc, cfg: cfg, logger: logger}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = mc.Close()
		return nil, err
	}
	logger.Info("embedding index ready",
		logging.String("address", cfg.Address),
		logging.String("collection", cfg.Collection),
		logging.Int("dim", cfg.Dim),
	)
	return idx, nil
}

// NewEmbeddingIndexWithAPI injects a VectorAPI, for tests.
func NewEmbeddingIndexWithAPI(api VectorAPI, cfg Config, logger logging.Logger) *EmbeddingIndex {
	cfg.applyDefaults()
	return &EmbeddingIndex{api: api, cfg: cfg, logger: logger}
}

// ensureCollection creates the collection and its HNSW index on first use.
func (e *EmbeddingIndex) ensureCollection(ctx context.Context) error {
	has, err := e.api.HasCollection(ctx, e.cfg.Collection)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "failed to check embedding collection")
	}
	if !has {
		schema := entity.NewSchema().
			WithName(e.cfg.Collection).
			WithDescription("molecule embeddings produced by the graph convolution model").
			WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeInt64).
				WithIsPrimaryKey(true).WithIsAutoID(true)).
			WithField(entity.NewField().WithName("smiles").WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(int64(e.cfg.MaxSMILESLength))).
			WithField(entity.NewField().WithName("run_id").WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(64)).
			WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(e.cfg.Dim)))

		if err := e.api.CreateCollection(ctx, schema, e.cfg.ShardsNum); err != nil {
			return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "failed to create embedding collection")
		}

		hnsw, err := entity.NewIndexHNSW(entity.COSINE, e.cfg.IndexM, e.cfg.IndexEfBuild)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "failed to build hnsw index spec")
		}
		if err := e.api.CreateIndex(ctx, e.cfg.Collection, "embedding", hnsw, false); err != nil {
			return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "failed to create embedding index")
		}
	}

	if err := e.api.LoadCollection(ctx, e.cfg.Collection, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "failed to load embedding collection")
	}
	return nil
}

// Insert writes embedding records and flushes so they become searchable.
func (e *EmbeddingIndex) Insert(ctx context.Context, records []EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	smiles := make([]string, len(records))
	runIDs := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		if len(r.Vector) != e.cfg.Dim {
			return errors.Newf(errors.ErrCodeShapeMismatch,
				"embedding for %s has dim %d, index expects %d", r.SMILES, len(r.Vector), e.cfg.Dim)
		}
		smiles[i] = r.SMILES
		runIDs[i] = r.RunID
		vectors[i] = r.Vector
	}

	_, err := e.api.Insert(ctx, e.cfg.Collection, "",
		entity.NewColumnVarChar("smiles", smiles),
		entity.NewColumnVarChar("run_id", runIDs),
		entity.NewColumnFloatVector("embedding", e.cfg.Dim, vectors),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "failed to insert embeddings")
	}
	if err := e.api.Flush(ctx, e.cfg.Collection, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "failed to flush embedding collection")
	}

	e.logger.Info("embeddings indexed",
		logging.String("collection", e.cfg.Collection),
		logging.Int("count", len(records)),
	)
	return nil
}

// Search returns the topK molecules whose embeddings are closest to vector.
func (e *EmbeddingIndex) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if len(vector) != e.cfg.Dim {
		return nil, errors.Newf(errors.ErrCodeShapeMismatch,
			"query vector has dim %d, index expects %d", len(vector), e.cfg.Dim)
	}
	if topK <= 0 {
		topK = 10
	}

	sp, err := entity.NewIndexHNSWSearchParam(e.cfg.SearchEf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "failed to build search params")
	}

	results, err := e.api.Search(ctx, e.cfg.Collection, nil, "",
		[]string{"smiles", "run_id"},
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding", entity.COSINE, topK, sp,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "similarity search failed")
	}

	var hits []Hit
	for _, res := range results {
		if res.Err != nil {
			return nil, errors.Wrap(res.Err, errors.ErrCodeEmbeddingFailed, "similarity search failed")
		}
		smilesCol := varCharColumn(res.Fields.GetColumn("smiles"))
		runCol := varCharColumn(res.Fields.GetColumn("run_id"))
		for i := 0; i < res.ResultCount; i++ {
			h := Hit{Score: res.Scores[i]}
			if smilesCol != nil && i < len(smilesCol.Data()) {
				h.SMILES = smilesCol.Data()[i]
			}
			if runCol != nil && i < len(runCol.Data()) {
				h.RunID = runCol.Data()[i]
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}

// DeleteRun removes every embedding indexed under a run.
func (e *EmbeddingIndex) DeleteRun(ctx context.Context, runID string) error {
	expr := `run_id == "` + runID + `"`
	if err := e.api.Delete(ctx, e.cfg.Collection, "", expr); err != nil {
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "failed to delete run embeddings")
	}
	return nil
}

// Close releases the underlying client connection.
func (e *EmbeddingIndex) Close() error {
	return e.api.Close()
}

func varCharColumn(col entity.Column) *entity.ColumnVarChar {
	if col == nil {
		return nil
	}
	vc, _ := col.(*entity.ColumnVarChar)
	return vc
}
