package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcsgo/internal/model"
)

func TestMemoryStoreRoundTrips(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	exerciseStore(t, store)
}

func TestMemoryStoreCopiesProblems(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	require.NoError(t, store.AppendProblems(ctx, "run-1", []model.Problem{{Problem: 0, Steps: 3}}))
	rows, ok, err := store.GetProblems(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	rows[0].Steps = 99

	again, _, err := store.GetProblems(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, again[0].Steps)
}
