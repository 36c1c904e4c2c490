package domain

import "time"

// WaContact is one chat (direct or group) known for a closer. Unique per
// (closer_id, jid).
type WaContact struct {
	ID            int64     `json:"id,string" gorm:"primaryKey"`
	CloserID      string    `json:"closer_id" gorm:"uniqueIndex:idx_wa_contact_closer_jid"`
	Jid           string    `json:"telefone" gorm:"uniqueIndex:idx_wa_contact_closer_jid"`
	Name          string    `json:"nome"`
	IsGroup       bool      `json:"is_group"`
	Participants  []string  `json:"group_participants" gorm:"serializer:json;type:text"`
	LastMessage   string    `json:"ultima_mensagem" gorm:"type:text"`
	LastMessageAt time.Time `json:"ultima_mensagem_timestamp"`
	Unread        int       `json:"nao_lidas"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (WaContact) TableName() string {
	return "wa_contact"
}
