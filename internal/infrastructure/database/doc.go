// Package database provides the SQLite connection and schema migrations
// for Lyngdorf Core.
//
// The only persistent state is the configuration-entry table owned by the
// entry package. Its UNIQUE(unique_id) index is what rejects the second of
// two flows committing the same receiver.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or defaulted, and every
// .up.sql has a matching .down.sql.
package database
