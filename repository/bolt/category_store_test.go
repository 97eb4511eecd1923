package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/repository"
	"github.com/fastygo/catalog/repository/storetest"
)

func openTemp(t *testing.T) repository.CategoryStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "catalog.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCategoryStoreConformance(t *testing.T) {
	storetest.Run(t, openTemp)
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	store, err := Open(path, "categories")
	require.NoError(t, err)
	root := storetest.Seed(t, store, "Electronics", nil)
	require.NoError(t, store.IncrementOwn(ctx, root.ID, domain.MetricsDelta{Products: 2}, 5))
	require.NoError(t, store.Close())

	reopened, err := Open(path, "categories")
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Metrics.ProductCount)
	assert.NoError(t, reopened.Ping(ctx))
}
