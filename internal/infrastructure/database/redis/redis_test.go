package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/gnn/graph"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/pkg/errors"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := NewClientWithBackend(rdb, "graphchem:", time.Hour, logging.NewNopLogger())
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestClient_Ping(t *testing.T) {
	c, mr := testClient(t)
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}

func TestMolGraphCache_RoundTrip(t *testing.T) {
	c, _ := testClient(t)
	cache := NewMolGraphCache(c)
	ctx := context.Background()

	g := &graph.MolGraph{
		SMILES:   "CCO",
		Features: mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}),
		Adj:      [][]int{{1}, {0, 2}, {1}},
	}

	_, ok := cache.Get(ctx, "CCO")
	assert.False(t, ok)

	cache.Set(ctx, "CCO", g)

	got, ok := cache.Get(ctx, "CCO")
	require.True(t, ok)
	assert.Equal(t, "CCO", got.SMILES)
	assert.True(t, mat.Equal(g.Features, got.Features))
	assert.Equal(t, g.Adj, got.Adj)
}

func TestMolGraphCache_KeyIsolation(t *testing.T) {
	c, _ := testClient(t)
	cache := NewMolGraphCache(c)
	ctx := context.Background()

	g := &graph.MolGraph{
		SMILES:   "C",
		Features: mat.NewDense(1, 2, []float64{1, 1}),
		Adj:      [][]int{nil},
	}
	cache.Set(ctx, "C", g)

	_, ok := cache.Get(ctx, "CC")
	assert.False(t, ok)
}

func TestMolGraphCache_DegradesOnFailure(t *testing.T) {
	c, mr := testClient(t)
	cache := NewMolGraphCache(c)
	mr.Close()

	// A dead Redis degrades to a miss, not an error.
	_, ok := cache.Get(context.Background(), "CCO")
	assert.False(t, ok)

	// And Set must not panic.
	cache.Set(context.Background(), "CCO", &graph.MolGraph{
		SMILES:   "CCO",
		Features: mat.NewDense(1, 1, []float64{1}),
		Adj:      [][]int{nil},
	})
}

func TestJitterTTL(t *testing.T) {
	ttl := time.Hour
	for i := 0; i < 100; i++ {
		j := jitterTTL(ttl)
		assert.GreaterOrEqual(t, j, ttl-ttl/10)
		assert.LessOrEqual(t, j, ttl+ttl/10)
	}
	assert.Equal(t, time.Duration(0), jitterTTL(0))
}

func TestLock_AcquireRelease(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	l1 := NewLock(c, "tox21", time.Minute)
	require.NoError(t, l1.Acquire(ctx))

	// Second holder is refused with the training-locked code.
	l2 := NewLock(c, "tox21", time.Minute)
	err := l2.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTrainingLocked))

	// A different name is independent.
	l3 := NewLock(c, "bbbp", time.Minute)
	require.NoError(t, l3.Acquire(ctx))

	require.NoError(t, l1.Release(ctx))
	require.NoError(t, l2.Acquire(ctx))
}

func TestLock_ReleaseOnlyOwnToken(t *testing.T) {
	c, mr := testClient(t)
	ctx := context.Background()

	l1 := NewLock(c, "tox21", time.Minute)
	require.NoError(t, l1.Acquire(ctx))

	// Simulate expiry plus reacquisition by another holder.
	mr.FastForward(2 * time.Minute)
	l2 := NewLock(c, "tox21", time.Minute)
	require.NoError(t, l2.Acquire(ctx))

	// The stale holder's release must not free l2's lock.
	require.NoError(t, l1.Release(ctx))
	l3 := NewLock(c, "tox21", time.Minute)
	assert.Error(t, l3.Acquire(ctx))
}

func TestLock_Refresh(t *testing.T) {
	c, mr := testClient(t)
	ctx := context.Background()

	l := NewLock(c, "tox21", time.Minute)
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Refresh(ctx))

	mr.FastForward(2 * time.Minute)
	assert.Error(t, l.Refresh(ctx))
}
