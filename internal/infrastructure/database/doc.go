// Package database provides the relay's SQLite store.
//
// The relay keeps two kinds of durable state: user accounts (for the
// signup/login gate) and an audit trail of commands submitted by web
// users. Both live in one SQLite file opened in WAL mode with a single
// writer connection.
//
// Schema changes ship as embedded migration files (see the top-level
// migrations package) and are applied at startup:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements and the database file is
// created with 0600 permissions.
package database
