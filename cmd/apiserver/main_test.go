package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
)

func TestLocalCheckpointFallback(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ckpts")
	store := localCheckpointFallback(dir, logging.NewNopLogger())
	require.NotNil(t, store)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "run-1/best.gob", []byte("payload")))
	data, err := store.Get(ctx, "run-1/best.gob")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestLocalCheckpointFallback_BadDirectory(t *testing.T) {
	// A path whose parent is a regular file cannot be created.
	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	store := localCheckpointFallback(filepath.Join(file, "ckpts"), logging.NewNopLogger())
	assert.Nil(t, store)
}

func TestSplitTasks(t *testing.T) {
	assert.Nil(t, splitTasks(""))
	assert.Equal(t, []string{"NR-AR", "SR-p53"}, splitTasks("NR-AR, SR-p53"))
	assert.Equal(t, []string{"tox"}, splitTasks("tox,"))
}
