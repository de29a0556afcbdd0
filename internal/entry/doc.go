// Package entry stores configuration entries: one per receiver that has
// been set up or ignored.
//
// An entry is keyed by its unique ID, the receiver's MAC address. The
// SQLite unique index on that column is what keeps two onboarding flows
// for the same receiver from both committing; the flow-level "already
// configured" check can still race.
//
// Ignored entries are placeholders that suppress rediscovery. They are
// excluded from most listings unless asked for, and a later flow may
// replace one atomically.
//
// Usage:
//
//	repo := entry.NewSQLiteRepository(db.DB)
//	registry := entry.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	e, err := registry.GetByUniqueID(ctx, "aa:bb:cc:dd:ee:ff")
package entry
