// Package notify defines the outbound notification variants delivered to a
// closer's live frontend client. The set is closed: every outbound payload is
// one of the types below.
package notify

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// Sink delivers notifications to the single live subscriber attached to a
// session. Delivery is fire-and-forget: a failed delivery must not abort the
// session.
type Sink interface {
	Send(n Notification) error
}

type Notification interface {
	noteType() string
}

// ContactRef identifies the contact a NEW_MESSAGE belongs to. The JSON field
// names follow the CRM frontend contract.
type ContactRef struct {
	ID   int64  `json:"id,string"`
	Jid  string `json:"telefone"`
	Name string `json:"nome"`
}

type QRCode struct {
	QRCode    string `json:"qrCode"`
	QRDataURL string `json:"qrDataUrl"`
}

type Connected struct {
	Message string `json:"message"`
}

type Disconnected struct {
	Reason string `json:"reason"`
}

type NewMessage struct {
	Contact ContactRef `json:"contact"`
	Message string     `json:"message"`
}

type Error struct {
	Message string `json:"message"`
}

type SessionStatus struct {
	Status string `json:"status"`
}

func (QRCode) noteType() string        { return "QR_CODE" }
func (Connected) noteType() string     { return "CONNECTED" }
func (Disconnected) noteType() string  { return "DISCONNECTED" }
func (NewMessage) noteType() string    { return "NEW_MESSAGE" }
func (Error) noteType() string         { return "ERROR" }
func (SessionStatus) noteType() string { return "SESSION_STATUS" }

// Envelope wraps a notification with its type tag for the wire.
func Envelope(n Notification) map[string]interface{} {
	env := map[string]interface{}{"type": n.noteType()}
	switch v := n.(type) {
	case QRCode:
		env["qrCode"] = v.QRCode
		env["qrDataUrl"] = v.QRDataURL
	case Connected:
		env["message"] = v.Message
	case Disconnected:
		env["reason"] = v.Reason
	case NewMessage:
		env["contact"] = v.Contact
		env["message"] = v.Message
	case Error:
		env["message"] = v.Message
	case SessionStatus:
		env["status"] = v.Status
	}
	return env
}

// RenderQRDataURL encodes a scan challenge as a PNG data URL so the frontend
// can show it without rendering the QR itself.
func RenderQRDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
