package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/idealis-crm/wabridge/internal/domain"
	"github.com/idealis-crm/wabridge/pkg/common"
)

// UpsertSessionStatus writes the current session status for a closer,
// refreshing the activity timestamp. A non-scan status clears any stale QR
// payload.
func (l *Ledger) UpsertSessionStatus(ctx context.Context, closerID, status string) error {
	assign := []string{"status", "last_activity", "updated_at"}
	row := domain.WaSession{
		ID:           common.UUIDint64(),
		CloserID:     closerID,
		Status:       status,
		LastActivity: time.Now(),
	}
	if status != domain.SessionWaitingScan {
		assign = append(assign, "qr_code")
	}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "closer_id"}},
			DoUpdates: clause.AssignmentColumns(assign),
		}).
		Create(&row).Error
	if err != nil {
		return storeErr("upsert session status", err)
	}
	return nil
}

// SetSessionQR stores the pending scan challenge alongside the waiting_scan
// status.
func (l *Ledger) SetSessionQR(ctx context.Context, closerID, qr string) error {
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "closer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "qr_code", "last_activity", "updated_at"}),
		}).
		Create(&domain.WaSession{
			ID:           common.UUIDint64(),
			CloserID:     closerID,
			Status:       domain.SessionWaitingScan,
			QrCode:       qr,
			LastActivity: time.Now(),
		}).Error
	if err != nil {
		return storeErr("set session qr", err)
	}
	return nil
}

// SessionStatus returns the persisted status for a closer, defaulting to
// disconnected when no row exists yet.
func (l *Ledger) SessionStatus(ctx context.Context, closerID string) (string, error) {
	var row domain.WaSession
	err := l.db.WithContext(ctx).
		Where("closer_id = ?", closerID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SessionDisconnected, nil
		}
		return "", storeErr("session status", err)
	}
	return row.Status, nil
}
