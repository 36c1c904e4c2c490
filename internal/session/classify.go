package session

import (
	"strings"
	"time"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/idealis-crm/wabridge/internal/domain"
)

// MediaPlaceholder is stored as the body text of non-text messages.
const MediaPlaceholder = "[Mídia]"

// RawMessage is one provider-delivered message with its envelope metadata.
type RawMessage struct {
	ID        string
	ChatJid   string
	SenderJid string
	PushName  string
	FromMe    bool
	IsGroup   bool
	Timestamp time.Time
	Content   *waE2E.Message
}

// Classified is the extracted text, content kind and sender metadata of a raw
// message.
type Classified struct {
	Text       string
	Kind       string
	FileURL    string
	FileName   string
	SenderJid  string
	SenderName string
}

// Classify extracts text, media kind and sender identity from a raw message.
// Text precedence: plain conversation text, else extended text, else a media
// placeholder. Sender fields are populated only for group messages not
// authored by the closer.
func Classify(raw RawMessage) Classified {
	c := Classified{Kind: domain.KindText}

	switch {
	case raw.Content.GetConversation() != "":
		c.Text = raw.Content.GetConversation()
	case raw.Content.GetExtendedTextMessage().GetText() != "":
		c.Text = raw.Content.GetExtendedTextMessage().GetText()
	default:
		c.Text = MediaPlaceholder
	}

	switch {
	case raw.Content.GetAudioMessage() != nil:
		c.Kind = domain.KindAudio
		c.FileURL = raw.Content.GetAudioMessage().GetURL()
		c.FileName = "audio.ogg"
	case raw.Content.GetImageMessage() != nil:
		c.Kind = domain.KindImage
		c.FileURL = raw.Content.GetImageMessage().GetURL()
		c.FileName = "image.jpg"
	case raw.Content.GetVideoMessage() != nil:
		c.Kind = domain.KindVideo
		c.FileURL = raw.Content.GetVideoMessage().GetURL()
		c.FileName = "video.mp4"
	case raw.Content.GetDocumentMessage() != nil:
		c.Kind = domain.KindDocument
		c.FileURL = raw.Content.GetDocumentMessage().GetURL()
		c.FileName = raw.Content.GetDocumentMessage().GetFileName()
		if c.FileName == "" {
			c.FileName = "document"
		}
	}

	if raw.IsGroup && !raw.FromMe {
		c.SenderJid = raw.SenderJid
		c.SenderName = raw.PushName
		if c.SenderName == "" {
			c.SenderName = localPart(raw.SenderJid)
		}
	}
	return c
}

// HasContent reports whether the raw event carries a message body at all.
// Provider ack/receipt stubs arrive with a nil content and are skipped.
func (raw RawMessage) HasContent() bool {
	return raw.Content != nil
}

func localPart(jid string) string {
	if idx := strings.IndexByte(jid, '@'); idx > 0 {
		return jid[:idx]
	}
	return jid
}
