package sqlite

import (
	"context"
	"database/sql"

	"github.com/packport/packport/internal/storage"
	"github.com/packport/packport/internal/telemetry"
)

// InstrumentedDownloadRepository wraps DownloadRepository with telemetry.
type InstrumentedDownloadRepository struct {
	repo      *DownloadRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedDownloadRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      NewDownloadRepository(dbConn),
		telemetry: tel,
	}
}

// TrackDownload inserts a record with telemetry.
func (r *InstrumentedDownloadRepository) TrackDownload(locator, identifier, version string) (int64, error) {
	var result int64

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "track_download", func(ctx context.Context) error {
		result, err = r.repo.TrackDownload(locator, identifier, version)

		return err
	})

	if instrumentedErr != nil {
		return 0, instrumentedErr
	}

	return result, nil
}

// UpdateDownloadStatus updates a record's status with telemetry.
func (r *InstrumentedDownloadRepository) UpdateDownloadStatus(id int64, status, archivePath string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "update_download_status", func(ctx context.Context) error {
		return r.repo.UpdateDownloadStatus(id, status, archivePath)
	})
}

// GetDownloads retrieves all download records with telemetry.
func (r *InstrumentedDownloadRepository) GetDownloads() ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_downloads", func(ctx context.Context) error {
		result, err = r.repo.GetDownloads()

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
