package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/apperr"
	"github.com/markdave123-py/memora/internal/auth"
	"github.com/markdave123-py/memora/internal/core/coretest"
)

func TestResolveMissingCredential(t *testing.T) {
	gate := auth.NewGate(coretest.NewFakeStore(), zap.NewNop(), false, "default")

	_, err := gate.Resolve(context.Background(), "", nil)

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestResolveUnknownCredential(t *testing.T) {
	gate := auth.NewGate(coretest.NewFakeStore(), zap.NewNop(), false, "default")

	_, err := gate.Resolve(context.Background(), "no-such-key", nil)

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestResolveKnownCredentialTouchesLastActive(t *testing.T) {
	store := coretest.NewFakeStore()
	u, err := store.CreateOrGetUser(context.Background(), "tenant-a", "alice", "alice@example.com")
	require.NoError(t, err)

	gate := auth.NewGate(store, zap.NewNop(), false, "default")

	id, err := gate.Resolve(context.Background(), u.APIKey, nil)
	require.NoError(t, err)

	assert.Equal(t, "tenant-a", id.TenantID)
	assert.Equal(t, u.ID, id.UserID)
	assert.Equal(t, []int64{u.ID}, store.TouchedUsers)
}

func TestResolveClaimedUserMismatchIsForbidden(t *testing.T) {
	store := coretest.NewFakeStore()
	u, err := store.CreateOrGetUser(context.Background(), "tenant-a", "alice", "alice@example.com")
	require.NoError(t, err)

	gate := auth.NewGate(store, zap.NewNop(), false, "default")

	other := u.ID + 1
	_, err = gate.Resolve(context.Background(), u.APIKey, &other)

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	assert.Empty(t, store.TouchedUsers, "forbidden resolution must not touch activity")
}

func TestResolveClaimedUserMatchSucceeds(t *testing.T) {
	store := coretest.NewFakeStore()
	u, err := store.CreateOrGetUser(context.Background(), "tenant-a", "alice", "alice@example.com")
	require.NoError(t, err)

	gate := auth.NewGate(store, zap.NewNop(), false, "default")

	id, err := gate.Resolve(context.Background(), u.APIKey, &u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id.UserID)
}

func TestPermissiveResolutionProvisionsDevUser(t *testing.T) {
	store := coretest.NewFakeStore()
	gate := auth.NewGate(store, zap.NewNop(), true, "dev-tenant")

	id, err := gate.Resolve(context.Background(), "anything-goes", nil)
	require.NoError(t, err)
	assert.Equal(t, "dev-tenant", id.TenantID)

	// A second unknown credential resolves to the same user, not a new one.
	again, err := gate.Resolve(context.Background(), "something-else", nil)
	require.NoError(t, err)
	assert.Equal(t, id.UserID, again.UserID)
}

func TestPermissiveStillRejectsEmptyCredential(t *testing.T) {
	gate := auth.NewGate(coretest.NewFakeStore(), zap.NewNop(), true, "dev-tenant")

	_, err := gate.Resolve(context.Background(), "", nil)

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestPermissivePrefersRealCredential(t *testing.T) {
	store := coretest.NewFakeStore()
	u, err := store.CreateOrGetUser(context.Background(), "tenant-a", "alice", "alice@example.com")
	require.NoError(t, err)

	gate := auth.NewGate(store, zap.NewNop(), true, "dev-tenant")

	id, err := gate.Resolve(context.Background(), u.APIKey, nil)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", id.TenantID, "a valid key must not be rerouted to the dev user")
	assert.Equal(t, u.ID, id.UserID)
}
