package storage

import "errors"

// ErrNotFound is returned when a download record does not exist.
var ErrNotFound = errors.New("download record not found")

// Terminal and transient download statuses.
const (
	StatusDownloading = "downloading"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusFailed      = "failed"
)

// DownloadRecord is one row of download history.
type DownloadRecord struct {
	ID          int64
	Locator     string
	Identifier  string
	Version     string
	ArchivePath string
	StartedAt   string
	Status      string
}

// DownloadRepository persists download history.
type DownloadRepository interface {
	TrackDownload(locator, identifier, version string) (int64, error)
	UpdateDownloadStatus(id int64, status, archivePath string) error
	GetDownloads() ([]DownloadRecord, error)
}
