package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the downloads table
// if it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY,
		locator TEXT NOT NULL,
		identifier TEXT,
		version TEXT,
		archive_path TEXT,
		started_at DATETIME,
		status TEXT DEFAULT 'downloading'
	)`)

	if err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}
