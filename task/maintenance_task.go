package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/angas/elprice/config"
)

// Maintainer is implemented by the SQLite database, which always holds the
// log table and backups regardless of where prices are stored.
type Maintainer interface {
	Backup(ctx context.Context) (string, error)
	PurgeBackups(ctx context.Context, retentionDays int) (int, error)
	PurgeLog(ctx context.Context, maxLogEntries int) error
}

func NewMaintenanceTask(logger *slog.Logger, m Maintainer, cnfg *config.AppConfig) func() {
	return func() {
		logger.Debug("running maintenance task...")

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()

		if _, err := m.Backup(ctx); err != nil {
			logger.Error("database backup error", slog.Any("error", err))
		}

		if _, err := m.PurgeBackups(ctx, cnfg.Database.GetBackupRetentionDays()); err != nil {
			logger.Error("backup maintenance error", slog.Any("error", err))
		}

		if err := m.PurgeLog(ctx, cnfg.Logging.GetDbMaxEntries()); err != nil {
			logger.Error("log maintenance error", slog.Any("error", err))
		}

		logger.Info("maintenance task done")
	}
}
