package redis

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/gnn/graph"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
)

// cachedGraph is the gob-serializable form of a molecule graph.  Feature
// matrices are flattened row-major because gonum matrices do not gob-encode.
type cachedGraph struct {
	SMILES string
	Rows   int
	Cols   int
	Data   []float64
	Adj    [][]int
}

// MolGraphCache caches featurized molecule graphs in Redis, keyed by a hash
// of the SMILES string.  It implements dataset.GraphCache: cache failures
// degrade to misses so that featurization never fails because Redis did.
type MolGraphCache struct {
	client *Client
}

// NewMolGraphCache wraps a Redis client as a molecule graph cache.
func NewMolGraphCache(client *Client) *MolGraphCache {
	return &MolGraphCache{client: client}
}

// cacheKey hashes the SMILES so arbitrary structures produce safe keys.
func (c *MolGraphCache) cacheKey(smiles string) string {
	sum := sha256.Sum256([]byte(smiles))
	return c.client.key("molgraph:" + hex.EncodeToString(sum[:16]))
}

// Get fetches a cached graph, returning ok=false on miss or any failure.
func (c *MolGraphCache) Get(ctx context.Context, smiles string) (*graph.MolGraph, bool) {
	raw, err := c.client.rdb.Get(ctx, c.cacheKey(smiles)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.client.logger.Warn("molgraph cache read failed", logging.Err(err))
		return nil, false
	}

	var cached cachedGraph
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&cached); err != nil {
		c.client.logger.Warn("molgraph cache entry corrupt", logging.Err(err))
		return nil, false
	}
	return cached.toGraph(), true
}

// Set stores a graph with a jittered TTL.  Failures are logged, not
// returned; the caller already has the graph in hand.
func (c *MolGraphCache) Set(ctx context.Context, smiles string, g *graph.MolGraph) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(fromGraph(g)); err != nil {
		c.client.logger.Warn("molgraph cache encode failed", logging.Err(err))
		return
	}
	if err := c.client.rdb.Set(ctx, c.cacheKey(smiles), buf.Bytes(), jitterTTL(c.client.ttl)).Err(); err != nil {
		c.client.logger.Warn("molgraph cache write failed", logging.Err(err))
	}
}

// jitterTTL spreads expirations ±10% so a bulk featurization pass does not
// expire all at once.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	jitter := time.Duration(rand.Int63n(int64(ttl) / 5))
	return ttl - ttl/10 + jitter
}

func fromGraph(g *graph.MolGraph) *cachedGraph {
	rows, cols := g.Features.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, g.Features.RawRowView(i)...)
	}
	return &cachedGraph{SMILES: g.SMILES, Rows: rows, Cols: cols, Data: data, Adj: g.Adj}
}

func (c *cachedGraph) toGraph() *graph.MolGraph {
	return &graph.MolGraph{
		SMILES:   c.SMILES,
		Features: mat.NewDense(c.Rows, c.Cols, c.Data),
		Adj:      c.Adj,
	}
}
