package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/packport/packport/internal/logctx"
	"github.com/packport/packport/internal/storage"
)

// DeleteExpiredArchives deletes completed package archives older than
// keepDuration based on tracked records.
func DeleteExpiredArchives(ctx context.Context, records []storage.DownloadRecord, keepDuration time.Duration) error {
	logger := logctx.Logger(ctx)
	now := time.Now()

	for _, rec := range records {
		if rec.Status != storage.StatusCompleted || rec.ArchivePath == "" {
			continue
		}

		info, err := os.Stat(rec.ArchivePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.Error("failed to stat archive", "file", rec.ArchivePath, "err", err)

			return err
		}

		startedAt, err := time.Parse(time.RFC3339, rec.StartedAt)
		if err != nil {
			// fallback: use file mod time
			logger.Warn("failed to parse download time, using file mod time", "file", rec.ArchivePath, "err", err)

			startedAt = info.ModTime()
		}

		if now.Sub(startedAt) > keepDuration {
			if err := os.Remove(rec.ArchivePath); err != nil && !os.IsNotExist(err) {
				logger.Error("failed to delete expired archive", "file", rec.ArchivePath, "err", err)

				return err
			}

			logger.Info("deleted expired archive", "file", rec.ArchivePath)
		}
	}

	return nil
}
