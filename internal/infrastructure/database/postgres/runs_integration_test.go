//go:build integration

// Integration tests for the run repository.  They require Docker and are
// gated behind the "integration" build tag.
package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/molforge/graphchem/internal/infrastructure/database/postgres"
	"github.com/molforge/graphchem/pkg/errors"
)

// startPostgres launches a PostgreSQL 16 container and returns a connected pool.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "graphchem_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/graphchem_test?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applyRunsSchema(t, pool)
	return pool
}

func applyRunsSchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ddl := `
	CREATE TABLE IF NOT EXISTS runs (
		id             UUID PRIMARY KEY,
		dataset        TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		tasks          TEXT[] NOT NULL DEFAULT '{}',
		config         JSONB NOT NULL DEFAULT '{}',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at     TIMESTAMPTZ,
		finished_at    TIMESTAMPTZ,
		best_epoch     INTEGER NOT NULL DEFAULT 0,
		mean_auc       DOUBLE PRECISION NOT NULL DEFAULT 0,
		checkpoint_key TEXT NOT NULL DEFAULT '',
		error_message  TEXT NOT NULL DEFAULT ''
	)`
	_, err := pool.Exec(context.Background(), ddl)
	require.NoError(t, err)
}

func newRun(dataset string) *postgres.Run {
	return &postgres.Run{
		ID:      uuid.NewString(),
		Dataset: dataset,
		Tasks:   []string{"NR-AR", "SR-p53"},
		Config:  []byte(`{"epochs":10,"batch_size":64}`),
	}
}

func TestRunRepository_Lifecycle(t *testing.T) {
	pool := startPostgres(t)
	repo := postgres.NewRunRepository(pool)
	ctx := context.Background()

	run := newRun("tox21")
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, postgres.RunStatusPending, got.Status)
	assert.Equal(t, []string{"NR-AR", "SR-p53"}, got.Tasks)
	assert.Nil(t, got.StartedAt)

	require.NoError(t, repo.Start(ctx, run.ID))
	got, err = repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, postgres.RunStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	require.NoError(t, repo.Complete(ctx, run.ID, 7, 0.843, run.ID+"/epoch-007.gob"))
	got, err = repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, postgres.RunStatusCompleted, got.Status)
	assert.Equal(t, 7, got.BestEpoch)
	assert.InDelta(t, 0.843, got.MeanAUC, 1e-9)
	assert.Equal(t, run.ID+"/epoch-007.gob", got.CheckpointKey)
	require.NotNil(t, got.FinishedAt)
}

func TestRunRepository_Fail(t *testing.T) {
	pool := startPostgres(t)
	repo := postgres.NewRunRepository(pool)
	ctx := context.Background()

	run := newRun("tox21")
	require.NoError(t, repo.Create(ctx, run))
	require.NoError(t, repo.Start(ctx, run.ID))
	require.NoError(t, repo.Fail(ctx, run.ID, fmt.Errorf("featurization failed")))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, postgres.RunStatusFailed, got.Status)
	assert.Equal(t, "featurization failed", got.Error)
}

func TestRunRepository_NotFound(t *testing.T) {
	pool := startPostgres(t)
	repo := postgres.NewRunRepository(pool)
	ctx := context.Background()

	_, err := repo.Get(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRunNotFound))

	err = repo.Start(ctx, uuid.NewString())
	assert.True(t, errors.IsCode(err, errors.ErrCodeRunNotFound))

	err = repo.Complete(ctx, uuid.NewString(), 0, 0, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeRunNotFound))
}

func TestRunRepository_List(t *testing.T) {
	pool := startPostgres(t)
	repo := postgres.NewRunRepository(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := newRun(fmt.Sprintf("ds-%d", i))
		run.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, run))
	}

	runs, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "ds-2", runs[0].Dataset)
	assert.Equal(t, "ds-1", runs[1].Dataset)
}
