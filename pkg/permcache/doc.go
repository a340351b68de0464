// Package permcache caches role-permission assignments loaded from a durable
// store and exposes a query surface over the hydrated permission graph.
//
// The Registrar owns a single cache slot: on first use it loads every
// permission with its roles from a Source, compacts the records with
// single-character field aliases, stores the result in a Store under a TTL,
// and hydrates it into shared in-memory objects. Explicit invalidation
// (Forget) drops both the in-process view and the stored entry so the next
// lookup re-derives everything from the durable store.
//
//	store := permcache.NewMemoryStore()
//	source := permcache.NewMemorySource(seed)
//	registrar := permcache.NewRegistrar(store, source)
//
//	perms, err := registrar.GetPermissions(ctx, map[string]any{"guard": "web"})
//
// In production the Store is Redis and the Source is Postgres:
//
//	registrar := permcache.NewRegistrar(
//	    permcache.NewRedisStore(redisClient),
//	    permcache.NewPostgresSource(pool),
//	    permcache.WithTTL(12*time.Hour),
//	)
//
// The cache may serve data up to one TTL old after a mutation that bypassed
// Forget. Callers needing strict read-after-write consistency must invalidate
// explicitly; the Manager does this after every administrative write.
//
// Concurrent lookups during a load are collapsed into a single durable-store
// query, and invalidation is atomic with respect to readers: an observer sees
// either the previous complete view or a fully rebuilt one, never a partial
// state.
package permcache
