// Package database provides SQLite connectivity for the back office.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS (see the migrations package)
//   - Health checks used by the API health endpoint
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600: it stores password hashes
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Migrations are additive: new columns must
// be nullable or carry a default.
package database
