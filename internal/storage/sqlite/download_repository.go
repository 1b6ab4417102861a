package sqlite

import (
	"database/sql"
	"time"

	"github.com/packport/packport/internal/storage"
)

type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: dbConn}
}

// TrackDownload inserts a new record in the 'downloading' state and returns
// its id.
func (r *DownloadRepository) TrackDownload(locator, identifier, version string) (int64, error) {
	res, err := r.db.Exec(
		`INSERT INTO downloads (locator, identifier, version, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		locator, identifier, version, time.Now().Format(time.RFC3339), storage.StatusDownloading,
	)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// UpdateDownloadStatus sets the terminal status for a record, along with the
// promoted archive path when the download completed.
func (r *DownloadRepository) UpdateDownloadStatus(id int64, status, archivePath string) error {
	res, err := r.db.Exec(
		`UPDATE downloads SET status = ?, archive_path = ? WHERE id = ?`,
		status, archivePath, id,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (r *DownloadRepository) GetDownloads() ([]storage.DownloadRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, locator, identifier, version, archive_path, started_at, status FROM downloads ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []storage.DownloadRecord

	for rows.Next() {
		var record storage.DownloadRecord

		var identifier, version, archivePath sql.NullString

		if err := rows.Scan(&record.ID, &record.Locator, &identifier, &version, &archivePath, &record.StartedAt, &record.Status); err != nil {
			return nil, err
		}

		record.Identifier = identifier.String
		record.Version = version.String
		record.ArchivePath = archivePath.String

		downloads = append(downloads, record)
	}

	return downloads, rows.Err()
}
