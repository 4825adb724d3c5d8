//go:build cgo

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/apikey"
	"github.com/keygate/keygate/internal/config"
)

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())
}

func openMigrated(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: "file:" + t.TempDir() + "/keygate.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(ctx))
	// Migrations are idempotent.
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openMigrated(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"first", "second"} {
		require.NoError(t, store.CreateAPIKey(ctx, apikey.Record{
			ID:        fmt.Sprintf("key-%d", i),
			UserID:    "user-1",
			Name:      name,
			HashedKey: "hash-" + name,
			Prefix:    "kg_abcdefg",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.CreateAPIKey(ctx, apikey.Record{
		ID: "key-other", UserID: "user-2", Name: "other", HashedKey: "hash-other", Prefix: "kg_zzzzzzz", CreatedAt: base,
	}))

	records, err := store.ListAPIKeys(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "second", records[0].Name)
	require.Equal(t, "first", records[1].Name)
	require.Equal(t, base, records[1].CreatedAt)
	require.Nil(t, records[0].RevokedAt)

	count, err := store.CountAPIKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	found, err := store.FindAPIKeyByHash(ctx, "hash-first")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "key-0", found.ID)

	missing, err := store.FindAPIKeyByHash(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	revokedAt := base.Add(time.Hour)
	require.ErrorIs(t, store.RevokeAPIKey(ctx, "user-2", "key-0", revokedAt), apikey.ErrNotFound)
	require.NoError(t, store.RevokeAPIKey(ctx, "user-1", "key-0", revokedAt))
	require.ErrorIs(t, store.RevokeAPIKey(ctx, "user-1", "key-0", revokedAt), apikey.ErrNotFound)

	found, err = store.FindAPIKeyByHash(ctx, "hash-first")
	require.NoError(t, err)
	require.NotNil(t, found.RevokedAt)
	require.Equal(t, revokedAt, *found.RevokedAt)

	count, err = store.CountAPIKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestCreateAPIKeyRejectsDuplicateHash(t *testing.T) {
	ctx := context.Background()
	store := openMigrated(t)

	record := apikey.Record{ID: "a", UserID: "u", Name: "n", HashedKey: "same", Prefix: "kg_", CreatedAt: time.Now()}
	require.NoError(t, store.CreateAPIKey(ctx, record))

	record.ID = "b"
	require.Error(t, store.CreateAPIKey(ctx, record))
}

func TestServiceOverStoreConcurrentIssue(t *testing.T) {
	ctx := context.Background()
	store := openMigrated(t)
	svc := apikey.NewService(store, apikey.NewGenerator("kg_", []byte("pepper")), apikey.Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(ctx, "user-1", fmt.Sprintf("key %d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 20)
}
