// Package tenant implements the per-tenant storage actor.
//
// Every tenant (an organization or an individual account) owns exactly one
// embedded SQLite database. All access to it goes through an Actor: a
// goroutine that applies operations one at a time, in arrival order. The
// actor is the lock, so no row-level locking is needed inside a tenant's
// store, and actors for different tenants share no mutable state.
//
// The schema is created lazily before the first operation is served:
//
//	CREATE TABLE IF NOT EXISTS tenant (...)
//	INSERT OR IGNORE INTO tenant (id, ...) VALUES (1, ...)
//
// Both statements are safe to re-run, so a restarted actor simply repeats
// them.
//
// Actors are addressed by tenant id through a Registry, which spawns them on
// first use, bounds how many are open and stops idle ones:
//
//	registry, err := tenant.NewRegistry(tenant.RegistryConfig{DataDir: dir}, tokens, log)
//	actor, err := registry.Get(ctx, "org_1")
//	rows, err := actor.Query(ctx, "SELECT * FROM tenant")
package tenant
