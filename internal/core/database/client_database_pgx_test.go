package db_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/apperr"
	"github.com/markdave123-py/memora/internal/config"
	"github.com/markdave123-py/memora/internal/core"
	db "github.com/markdave123-py/memora/internal/core/database"
	"github.com/markdave123-py/memora/internal/models"
)

// newTestStore connects to the database named by TEST_DATABASE_URL; tests
// are skipped when it is unset. Each test works inside its own tenant so
// runs do not interfere.
func newTestStore(t *testing.T) core.ContextStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := db.NewDatabaseClient(context.Background(), &config.Config{DatabaseURL: url}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testTenant(t *testing.T) string {
	return fmt.Sprintf("t-%s-%d", t.Name(), time.Now().UnixNano())
}

func newTestUser(t *testing.T, store core.ContextStore, tenant, externalID string) *models.User {
	t.Helper()
	u, err := store.CreateOrGetUser(context.Background(), tenant, externalID, externalID+"@example.com")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.DeleteUser(context.Background(), u.ID, tenant) })
	return u
}

func TestCreateOrGetUserIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	tenant := testTenant(t)

	first := newTestUser(t, store, tenant, "alice")
	again, err := store.CreateOrGetUser(context.Background(), tenant, "alice", "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.APIKey, again.APIKey, "re-registration must not rotate the key")
}

func TestResolveCredential(t *testing.T) {
	store := newTestStore(t)
	tenant := testTenant(t)
	u := newTestUser(t, store, tenant, "alice")

	id, err := store.ResolveCredential(context.Background(), u.APIKey)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{TenantID: tenant, UserID: u.ID}, *id)

	_, err = store.ResolveCredential(context.Background(), "not-a-key")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestUpsertSameSourceUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	tenant := testTenant(t)
	u := newTestUser(t, store, tenant, "alice")
	ctx := context.Background()

	src := "repo123"
	first, err := store.UpsertEntry(ctx, u.ID, tenant, "github", models.JSONDoc{"commits": float64(3)}, &src, nil)
	require.NoError(t, err)
	second, err := store.UpsertEntry(ctx, u.ID, tenant, "github", models.JSONDoc{"commits": float64(9)}, &src, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same key must update, not insert")

	entries, err := store.GetEntries(ctx, u.ID, tenant, "github", nil, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.JSONDoc{"commits": float64(9)}, entries[0].Content)
}

func TestNilSourceRowsAreIndependent(t *testing.T) {
	store := newTestStore(t)
	tenant := testTenant(t)
	u := newTestUser(t, store, tenant, "alice")
	ctx := context.Background()

	_, err := store.UpsertEntry(ctx, u.ID, tenant, "notes", models.JSONDoc{"text": "first"}, nil, nil)
	require.NoError(t, err)
	_, err = store.UpsertEntry(ctx, u.ID, tenant, "notes", models.JSONDoc{"text": "second"}, nil, nil)
	require.NoError(t, err)

	entries, err := store.GetEntries(ctx, u.ID, tenant, "notes", nil, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2, "keyless writes append")
	assert.Equal(t, models.JSONDoc{"text": "second"}, entries[0].Content, "most recent first")
}

func TestTenantIsolation(t *testing.T) {
	store := newTestStore(t)
	tenantA, tenantB := testTenant(t)+"-a", testTenant(t)+"-b"
	a := newTestUser(t, store, tenantA, "alice")
	b := newTestUser(t, store, tenantB, "alice")
	ctx := context.Background()

	_, err := store.UpsertEntry(ctx, a.ID, tenantA, "notes", models.JSONDoc{"text": "private"}, nil, nil)
	require.NoError(t, err)

	entries, err := store.GetEntries(ctx, b.ID, tenantB, "notes", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Deleting through the wrong tenant must not reach the row.
	all, err := store.GetEntries(ctx, a.ID, tenantA, "notes", nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NoError(t, store.DeleteEntry(ctx, all[0].ID, a.ID, tenantB))

	after, err := store.GetEntries(ctx, a.ID, tenantA, "notes", nil, 0)
	require.NoError(t, err)
	assert.Len(t, after, 1)
}

func TestDeletesAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	tenant := testTenant(t)
	u := newTestUser(t, store, tenant, "alice")
	ctx := context.Background()

	e, err := store.UpsertEntry(ctx, u.ID, tenant, "notes", models.JSONDoc{"text": "gone soon"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteEntry(ctx, e.ID, u.ID, tenant))
	require.NoError(t, store.DeleteEntry(ctx, e.ID, u.ID, tenant), "second delete is a no-op")
	require.NoError(t, store.DeleteByType(ctx, u.ID, tenant, "notes"))
	require.NoError(t, store.DeleteAllForUser(ctx, u.ID, tenant))
}

func TestDeleteUserCascades(t *testing.T) {
	store := newTestStore(t)
	tenant := testTenant(t)
	u := newTestUser(t, store, tenant, "alice")
	ctx := context.Background()

	_, err := store.UpsertEntry(ctx, u.ID, tenant, "notes", models.JSONDoc{"text": "a"}, nil, nil)
	require.NoError(t, err)
	_, err = store.UpsertEntry(ctx, u.ID, tenant, "tasks", models.JSONDoc{"text": "b"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(ctx, u.ID, tenant))

	_, err = store.ResolveCredential(ctx, u.APIKey)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	entries, err := store.GetEntries(ctx, u.ID, tenant, "notes", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSearchEntries(t *testing.T) {
	store := newTestStore(t)
	tenant := testTenant(t)
	u := newTestUser(t, store, tenant, "alice")
	ctx := context.Background()

	_, err := store.UpsertEntry(ctx, u.ID, tenant, "notes", models.JSONDoc{"text": "learning about goroutines"}, nil, nil)
	require.NoError(t, err)
	_, err = store.UpsertEntry(ctx, u.ID, tenant, "media", models.JSONDoc{"title": "some film"}, nil, nil)
	require.NoError(t, err)

	hits, err := store.SearchEntries(ctx, u.ID, tenant, "goroutine", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "notes", hits[0].ContextType)
}
