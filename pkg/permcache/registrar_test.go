package permcache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/permcache"
)

// countingSource wraps a Source and counts durable-store queries.
type countingSource struct {
	inner permcache.Source
	calls atomic.Int64
}

func (s *countingSource) Load(ctx context.Context) ([]permcache.Permission, error) {
	s.calls.Add(1)
	return s.inner.Load(ctx)
}

// failingStore simulates an unavailable backing store. Its errors are raw so
// tests verify the registrar classifies them as ErrStoreUnavailable itself.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("connection refused")
}

func (failingStore) Delete(ctx context.Context, key string) error {
	return errors.New("connection refused")
}

// setFailingStore reads and deletes fine but cannot persist.
type setFailingStore struct {
	permcache.Store
}

func (setFailingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("connection refused")
}

// failingSource simulates an unavailable durable store.
type failingSource struct{}

func (failingSource) Load(ctx context.Context) ([]permcache.Permission, error) {
	return nil, errors.New("database gone")
}

func seedPermissions() ([]permcache.Permission, *permcache.Role) {
	editor := &permcache.Role{ID: uuid.New(), Name: "editor", Guard: "web"}
	team := "acme"
	manager := &permcache.Role{ID: uuid.New(), Name: "manager", Guard: "web", TeamID: &team}

	return []permcache.Permission{
		{ID: uuid.New(), Name: "posts.edit", Guard: "web", Roles: []*permcache.Role{editor, manager}},
		{ID: uuid.New(), Name: "posts.delete", Guard: "web", Roles: []*permcache.Role{manager}},
		{ID: uuid.New(), Name: "posts.view", Guard: "api", Extra: map[string]any{"weight": 10}},
	}, editor
}

func TestRegistrar_LoadAndFilter(t *testing.T) {
	ctx := context.Background()
	seed, _ := seedPermissions()
	registrar := permcache.NewRegistrar(permcache.NewMemoryStore(), permcache.NewMemorySource(seed))

	t.Run("empty filter returns everything in load order", func(t *testing.T) {
		perms, err := registrar.GetPermissions(ctx, nil)
		require.NoError(t, err)
		require.Len(t, perms, 3)
		assert.Equal(t, "posts.edit", perms[0].Name)
		assert.Equal(t, "posts.delete", perms[1].Name)
		assert.Equal(t, "posts.view", perms[2].Name)
	})

	t.Run("filter by guard", func(t *testing.T) {
		perms, err := registrar.GetPermissions(ctx, map[string]any{"guard": "web"})
		require.NoError(t, err)
		assert.Len(t, perms, 2)
	})

	t.Run("filter by name and guard", func(t *testing.T) {
		perms, err := registrar.GetPermissions(ctx, map[string]any{"name": "posts.edit", "guard": "web"})
		require.NoError(t, err)
		require.Len(t, perms, 1)
		assert.True(t, perms[0].HasRole("editor"))
		assert.True(t, perms[0].HasRole("manager"))
	})

	t.Run("no match is empty, not an error", func(t *testing.T) {
		perms, err := registrar.GetPermissions(ctx, map[string]any{"name": "nope"})
		require.NoError(t, err)
		assert.Empty(t, perms)
	})

	t.Run("loose filter equality", func(t *testing.T) {
		// Extra values travel through JSON and come back as float64; both the
		// original int and its string form must still match.
		perms, err := registrar.GetPermissions(ctx, map[string]any{"weight": 10})
		require.NoError(t, err)
		require.Len(t, perms, 1)
		assert.Equal(t, "posts.view", perms[0].Name)

		perms, err = registrar.GetPermissions(ctx, map[string]any{"weight": "10"})
		require.NoError(t, err)
		require.Len(t, perms, 1)

		// Filtering by the uuid's string form works too.
		perms, err = registrar.GetPermissions(ctx, map[string]any{"id": seed[0].ID.String()})
		require.NoError(t, err)
		require.Len(t, perms, 1)
		assert.Equal(t, "posts.edit", perms[0].Name)
	})

	t.Run("unknown attribute never matches", func(t *testing.T) {
		perms, err := registrar.GetPermissions(ctx, map[string]any{"bogus": "x"})
		require.NoError(t, err)
		assert.Empty(t, perms)
	})
}

func TestRegistrar_GetPermission(t *testing.T) {
	ctx := context.Background()
	seed, _ := seedPermissions()
	registrar := permcache.NewRegistrar(permcache.NewMemoryStore(), permcache.NewMemorySource(seed))

	p, err := registrar.GetPermission(ctx, map[string]any{"guard": "web"})
	require.NoError(t, err)
	assert.Equal(t, "posts.edit", p.Name, "first match in load order")

	_, err = registrar.GetPermission(ctx, map[string]any{"name": "nope"})
	assert.ErrorIs(t, err, permcache.ErrPermissionNotFound)
	assert.NotErrorIs(t, err, permcache.ErrStoreUnavailable, "a miss is not an infrastructure failure")
	assert.NotErrorIs(t, err, permcache.ErrSourceUnavailable)
}

func TestRegistrar_SharedRolesAreSameInstance(t *testing.T) {
	ctx := context.Background()
	seed, _ := seedPermissions()
	registrar := permcache.NewRegistrar(permcache.NewMemoryStore(), permcache.NewMemorySource(seed))

	perms, err := registrar.GetPermissions(ctx, map[string]any{"guard": "web"})
	require.NoError(t, err)
	require.Len(t, perms, 2)

	var fromEdit, fromDelete *permcache.Role
	for _, role := range perms[0].Roles {
		if role.Name == "manager" {
			fromEdit = role
		}
	}
	for _, role := range perms[1].Roles {
		if role.Name == "manager" {
			fromDelete = role
		}
	}
	require.NotNil(t, fromEdit)
	require.NotNil(t, fromDelete)
	assert.Same(t, fromEdit, fromDelete, "shared roles must be deduplicated, not copied")
	require.NotNil(t, fromEdit.TeamID)
	assert.Equal(t, "acme", *fromEdit.TeamID)
}

func TestRegistrar_ForgetFreshness(t *testing.T) {
	ctx := context.Background()
	seed, _ := seedPermissions()
	source := permcache.NewMemorySource(seed)
	registrar := permcache.NewRegistrar(permcache.NewMemoryStore(), source)

	perms, err := registrar.GetPermissions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, perms, 3)

	// Mutate the durable store. Without Forget the cache keeps serving the
	// stale view even though the TTL has not expired.
	source.Replace(seed[:1])

	perms, err = registrar.GetPermissions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, perms, 3, "stale view inside the TTL window")

	require.NoError(t, registrar.Forget(ctx))

	perms, err = registrar.GetPermissions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, perms, 1, "reload reflects durable-store state as of Forget")
}

func TestRegistrar_SharedStoreAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := permcache.NewMemoryStore()
	seed, _ := seedPermissions()

	first := &countingSource{inner: permcache.NewMemorySource(seed)}
	r1 := permcache.NewRegistrar(store, first, permcache.WithTTL(30*time.Millisecond))
	_, err := r1.GetPermissions(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.calls.Load())

	// A second process sharing the store hydrates from the cached entry
	// without touching the durable store.
	second := &countingSource{inner: permcache.NewMemorySource(seed)}
	r2 := permcache.NewRegistrar(store, second, permcache.WithTTL(30*time.Millisecond))
	perms, err := r2.GetPermissions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, perms, 3)
	assert.EqualValues(t, 0, second.calls.Load())

	// Once the TTL lapses, a fresh instance re-derives from the source.
	time.Sleep(40 * time.Millisecond)
	third := &countingSource{inner: permcache.NewMemorySource(seed)}
	r3 := permcache.NewRegistrar(store, third, permcache.WithTTL(30*time.Millisecond))
	_, err = r3.GetPermissions(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, third.calls.Load())
}

func TestRegistrar_StaleFormatEntryForcesReload(t *testing.T) {
	ctx := context.Background()
	store := permcache.NewMemoryStore()
	seed, _ := seedPermissions()
	source := &countingSource{inner: permcache.NewMemorySource(seed)}

	tests := []struct {
		name    string
		payload string
	}{
		{name: "entry without alias table", payload: `{"permissions":[{"a":"x"}],"roles":[]}`},
		{name: "undecodable payload", payload: `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, permcache.DefaultCacheKey, []byte(tt.payload), 0))

			registrar := permcache.NewRegistrar(store, source)
			perms, err := registrar.GetPermissions(ctx, nil)
			require.NoError(t, err, "stale format is recovered internally, never surfaced")
			assert.Len(t, perms, 3)
		})
	}
}

func TestRegistrar_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	seed, _ := seedPermissions()

	t.Run("read failure", func(t *testing.T) {
		registrar := permcache.NewRegistrar(failingStore{}, permcache.NewMemorySource(seed))

		_, err := registrar.GetPermissions(ctx, nil)
		assert.ErrorIs(t, err, permcache.ErrStoreUnavailable, "store failures must surface, not fail open")
	})

	t.Run("write failure", func(t *testing.T) {
		store := setFailingStore{Store: permcache.NewMemoryStore()}
		registrar := permcache.NewRegistrar(store, permcache.NewMemorySource(seed))

		_, err := registrar.GetPermissions(ctx, nil)
		assert.ErrorIs(t, err, permcache.ErrStoreUnavailable)
	})
}

func TestRegistrar_SourceUnavailableRetriesNextCall(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{inner: failingSource{}}
	registrar := permcache.NewRegistrar(permcache.NewMemoryStore(), source)

	_, err := registrar.GetPermissions(ctx, nil)
	assert.True(t, errors.Is(err, permcache.ErrSourceUnavailable))

	// No negative caching: the next call queries the durable store again.
	_, err = registrar.GetPermissions(ctx, nil)
	assert.True(t, errors.Is(err, permcache.ErrSourceUnavailable))
	assert.EqualValues(t, 2, source.calls.Load())
}

func TestRegistrar_TeamScope(t *testing.T) {
	seed, _ := seedPermissions()
	registrar := permcache.NewRegistrar(permcache.NewMemoryStore(), permcache.NewMemorySource(seed))

	assert.Empty(t, registrar.TeamID())

	registrar.SetTeamID("acme")
	assert.Equal(t, "acme", registrar.TeamID())

	registrar.ClearTeamID()
	assert.Empty(t, registrar.TeamID())
}

func TestRegistrar_EmptyPermissionSet(t *testing.T) {
	ctx := context.Background()
	registrar := permcache.NewRegistrar(permcache.NewMemoryStore(), permcache.NewMemorySource(nil))

	perms, err := registrar.GetPermissions(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, perms)
}
