package domain

import "time"

// Session status values. The persisted row outlives the in-memory session.
const (
	SessionConnecting   = "connecting"
	SessionWaitingScan  = "waiting_scan"
	SessionConnected    = "connected"
	SessionDisconnected = "disconnected"
	SessionFailed       = "failed"
)

// WaSession tracks the provider session state for one closer.
type WaSession struct {
	ID           int64     `json:"id,string" gorm:"primaryKey"`
	CloserID     string    `json:"closer_id" gorm:"uniqueIndex"`
	Status       string    `json:"status"`
	QrCode       string    `json:"qr_code" gorm:"type:text"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (WaSession) TableName() string {
	return "wa_session"
}
