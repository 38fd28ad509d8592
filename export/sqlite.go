package export

import (
	"database/sql"
	"fmt"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite opens (creating if needed) the sqlite DB at path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite DB %q: %w", path, err)
	}
	// sqlite allows one writer at a time.
	db.SetMaxOpenConns(1)
	return db, nil
}
