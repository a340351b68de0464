package permcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/dmitrymomot/authzkit/pkg/alias"
)

const (
	// DefaultCacheKey is the backing-store key for the single cache entry.
	DefaultCacheKey = "authzkit.permissions"

	// DefaultTTL bounds how long the backing store may serve an entry without
	// re-deriving it from the durable store.
	DefaultTTL = 24 * time.Hour
)

// Option configures a Registrar.
type Option func(*Registrar)

// WithCacheKey overrides the backing-store key.
func WithCacheKey(key string) Option {
	return func(r *Registrar) {
		if key != "" {
			r.key = key
		}
	}
}

// WithTTL overrides the cache expiration time.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registrar) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets the logger for recoverable conditions.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registrar) {
		if log != nil {
			r.log = log
		}
	}
}

// WithExcludedFields overrides the record fields dropped from cache entries.
func WithExcludedFields(fields ...string) Option {
	return func(r *Registrar) {
		r.excluded = fields
	}
}

// Registrar owns the permission cache slot: loading from the durable store,
// compact serialization into the backing store, hydration, querying, and
// invalidation. One Registrar is constructed at process start and shared by
// reference; all methods are safe for concurrent use.
type Registrar struct {
	store    Store
	source   Source
	key      string
	ttl      time.Duration
	log      *slog.Logger
	excluded []string

	// loadMu serializes reloads so concurrent lookups after invalidation
	// trigger at most one durable-store query. Forget takes it too, so an
	// invalidation and a load never interleave.
	loadMu sync.Mutex

	// mu guards the hydrated snapshot; nil means the slot is empty. The
	// snapshot is replaced wholesale, never mutated in place.
	mu       sync.RWMutex
	snapshot []*Permission

	teamMu sync.RWMutex
	teamID string
}

// NewRegistrar creates a Registrar over the given backing store and durable
// source.
func NewRegistrar(store Store, source Source, opts ...Option) *Registrar {
	r := &Registrar{
		store:    store,
		source:   source,
		key:      DefaultCacheKey,
		ttl:      DefaultTTL,
		log:      slog.Default(),
		excluded: defaultExcludedFields,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetPermissions returns the hydrated permissions whose attributes match
// every key/value pair in filter, in load order. Filterable attributes are
// "id", "name", "guard" and any extra record field.
//
// Comparison is coercive: values match when they are deeply equal or when
// their fmt.Sprint forms are equal, so a numeric string matches its number
// and a uuid.UUID matches its string form. An empty or nil filter returns
// every permission. No match is an empty result, not an error.
func (r *Registrar) GetPermissions(ctx context.Context, filter map[string]any) ([]*Permission, error) {
	permissions, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*Permission, 0, len(permissions))
	for _, p := range permissions {
		if matchesFilter(p, filter) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// GetPermission returns the first permission matching the filter in load
// order. A miss returns ErrPermissionNotFound, which only reports that no
// permission matched; infrastructure failures surface as ErrStoreUnavailable
// or ErrSourceUnavailable instead. Callers that prefer the empty-result
// semantics of GetPermissions can match the sentinel with errors.Is.
func (r *Registrar) GetPermission(ctx context.Context, filter map[string]any) (*Permission, error) {
	permissions, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range permissions {
		if matchesFilter(p, filter) {
			return p, nil
		}
	}
	return nil, ErrPermissionNotFound
}

// Forget drops the hydrated view and evicts the backing store's entry so the
// next lookup re-derives from the durable store even inside the TTL window.
// It waits for an in-flight load to finish first, so a reload that read the
// durable store before the mutation cannot republish its view, or re-persist
// it with a fresh TTL, after the eviction.
func (r *Registrar) Forget(ctx context.Context) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	r.mu.Lock()
	r.snapshot = nil
	r.mu.Unlock()

	if err := r.store.Delete(ctx, r.key); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// SetTeamID sets the team scoping key consulted by callers building
// role-scoped queries. The Registrar itself does not filter by it.
func (r *Registrar) SetTeamID(id string) {
	r.teamMu.Lock()
	r.teamID = id
	r.teamMu.Unlock()
}

// TeamID returns the current team scoping key; empty means unscoped.
func (r *Registrar) TeamID() string {
	r.teamMu.RLock()
	defer r.teamMu.RUnlock()
	return r.teamID
}

// ClearTeamID resets the team scoping key.
func (r *Registrar) ClearTeamID() {
	r.SetTeamID("")
}

// load returns the hydrated snapshot, building it first if the slot is empty.
// Concurrent callers during a load block on loadMu and observe the result of
// the single in-flight load. A failed load leaves the slot empty; the next
// call retries.
func (r *Registrar) load(ctx context.Context) ([]*Permission, error) {
	r.mu.RLock()
	snapshot := r.snapshot
	r.mu.RUnlock()
	if snapshot != nil {
		return snapshot, nil
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	// Another caller may have completed the load while we waited.
	r.mu.RLock()
	snapshot = r.snapshot
	r.mu.RUnlock()
	if snapshot != nil {
		return snapshot, nil
	}

	data, found, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	if found {
		hydrated, err := r.hydrate(data)
		if err == nil {
			r.publish(hydrated)
			return hydrated, nil
		}
		if !errors.Is(err, errStaleFormat) {
			return nil, err
		}

		// Legacy or foreign entry: evict and rebuild from the durable store.
		r.log.WarnContext(ctx, "permission cache entry has stale format, rebuilding",
			slog.String("key", r.key), slog.Any("error", err))
		if err := r.store.Delete(ctx, r.key); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
	}

	permissions, err := r.source.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrSourceUnavailable, err)
	}

	entry := r.buildEntry(permissions)
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("permcache: marshal cache entry: %w", err)
	}
	if err := r.store.Set(ctx, r.key, payload, r.ttl); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	hydrated, err := hydrateEntry(entry)
	if err != nil {
		return nil, err
	}
	r.publish(hydrated)
	return hydrated, nil
}

func (r *Registrar) publish(snapshot []*Permission) {
	r.mu.Lock()
	r.snapshot = snapshot
	r.mu.Unlock()
}

// buildEntry compacts the permission set into the serialized cache form.
// Aliases are assigned from the permission alphabet first; the first role
// encountered lazily reserves the relation alias and assigns the role
// alphabet. Each distinct role is encoded exactly once.
func (r *Registrar) buildEntry(permissions []Permission) *cacheEntry {
	codec := alias.New(r.excluded...)

	encodedPerms := make([]map[string]any, 0, len(permissions))
	encodedRoles := make([]map[string]any, 0)
	seenRoles := make(map[string]struct{})
	rolesAssigned := false

	for i := range permissions {
		p := &permissions[i]
		fields, record := permissionRecord(p)
		if i == 0 {
			codec.Assign(alias.KindPermission, fields)
		}
		encoded := codec.Encode(record)

		if len(p.Roles) > 0 {
			if !rolesAssigned {
				codec.Reserve(rolesField, rolesAlias)
				roleFields, _ := roleRecord(p.Roles[0])
				codec.Assign(alias.KindRole, roleFields)
				rolesAssigned = true
			}

			ids := make([]string, 0, len(p.Roles))
			for _, role := range p.Roles {
				id := role.ID.String()
				ids = append(ids, id)
				if _, ok := seenRoles[id]; ok {
					continue
				}
				seenRoles[id] = struct{}{}
				_, roleRec := roleRecord(role)
				encodedRoles = append(encodedRoles, codec.Encode(roleRec))
			}
			encoded[rolesAlias] = ids
		}

		encodedPerms = append(encodedPerms, encoded)
	}

	return &cacheEntry{
		Alias:       codec.Table(),
		Permissions: encodedPerms,
		Roles:       encodedRoles,
	}
}

// hydrate parses a stored blob and rebuilds the in-memory permission graph.
// Undecodable payloads and entries without an alias table are reported as
// errStaleFormat so the caller can force a rebuild.
func (r *Registrar) hydrate(data []byte) ([]*Permission, error) {
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", errStaleFormat, err)
	}
	return hydrateEntry(&entry)
}

// hydrateEntry decodes roles first into an identity-keyed arena, then
// permissions, resolving each permission's role list against the arena so
// shared roles are the same instance.
func hydrateEntry(entry *cacheEntry) ([]*Permission, error) {
	if len(entry.Alias) == 0 && (len(entry.Permissions) > 0 || len(entry.Roles) > 0) {
		return nil, fmt.Errorf("%w: missing alias table", errStaleFormat)
	}

	codec := alias.FromTable(entry.Alias)

	arena := make(map[string]*Role, len(entry.Roles))
	for _, record := range entry.Roles {
		role, err := roleFromRecord(codec.Decode(record))
		if err != nil {
			return nil, err
		}
		arena[role.ID.String()] = role
	}

	permissions := make([]*Permission, 0, len(entry.Permissions))
	for _, record := range entry.Permissions {
		roleIDs := record[rolesAlias]
		decoded := codec.Decode(record)
		delete(decoded, rolesField)
		delete(decoded, rolesAlias)

		p, err := permissionFromRecord(decoded)
		if err != nil {
			return nil, err
		}
		for _, id := range anyStrings(roleIDs) {
			if role, ok := arena[id]; ok {
				p.Roles = append(p.Roles, role)
			}
		}
		permissions = append(permissions, p)
	}

	return permissions, nil
}

// anyStrings converts the JSON-decoded role id list ([]any of strings) into
// a string slice, tolerating a pre-decode []string.
func anyStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

func matchesFilter(p *Permission, filter map[string]any) bool {
	for attr, want := range filter {
		got, ok := p.attribute(attr)
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	return true
}

// looseEqual preserves the coercive comparison callers depend on: deep
// equality first, then equality of the values' string forms.
func looseEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
