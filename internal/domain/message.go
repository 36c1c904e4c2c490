package domain

import "time"

// Message direction values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message content kinds.
const (
	KindText     = "text"
	KindAudio    = "audio"
	KindImage    = "image"
	KindVideo    = "video"
	KindDocument = "document"
)

// WaMessage is one provider message. WaMessageID is unique per closer so
// re-delivery of the same provider id never creates a second row.
type WaMessage struct {
	ID          int64     `json:"id,string" gorm:"primaryKey"`
	CloserID    string    `json:"closer_id" gorm:"uniqueIndex:idx_wa_message_closer_waid"`
	WaMessageID string    `json:"mensagem_id_whatsapp" gorm:"uniqueIndex:idx_wa_message_closer_waid"`
	ContactID   int64     `json:"contact_id,string" gorm:"index"`
	Body        string    `json:"mensagem_texto" gorm:"type:text"`
	Direction   string    `json:"direction"`
	Kind        string    `json:"tipo"`
	FileURL     string    `json:"arquivo_url"`
	FileName    string    `json:"arquivo_nome"`
	SenderJid   string    `json:"sender_phone"`
	SenderName  string    `json:"sender_name"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"lida"`
	CreatedAt   time.Time `json:"created_at"`
}

func (WaMessage) TableName() string {
	return "wa_message"
}
