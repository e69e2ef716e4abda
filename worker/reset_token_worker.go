package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"volunteerconnect/models"
)

// ResetTokenWorker clears password-reset tokens once they expire.
type ResetTokenWorker struct {
	db       *gorm.DB
	logger   *logrus.Entry
	interval time.Duration
}

func NewResetTokenWorker(db *gorm.DB, logger *logrus.Entry, interval time.Duration) *ResetTokenWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ResetTokenWorker{
		db:       db,
		logger:   logger,
		interval: interval,
	}
}

func (w *ResetTokenWorker) Start(ctx context.Context) {
	w.logger.Info("Starting reset token worker...")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			purged, err := w.PurgeExpired(ctx, time.Now())
			if err != nil {
				w.logger.WithError(err).Error("Failed to purge expired reset tokens")
				continue
			}
			if purged > 0 {
				w.logger.WithField("purged", purged).Info("Purged expired reset tokens")
			}
		case <-ctx.Done():
			w.logger.Info("Stopping reset token worker...")
			return
		}
	}
}

// PurgeExpired clears every reset token that expired before now and returns how many were cleared.
func (w *ResetTokenWorker) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := w.db.WithContext(ctx).
		Model(&models.User{}).
		Where("reset_token_expires_at IS NOT NULL AND reset_token_expires_at <= ?", now).
		Updates(map[string]interface{}{
			"reset_token_hash":       nil,
			"reset_token_expires_at": nil,
		})
	return result.RowsAffected, result.Error
}
