package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/idealis-crm/wabridge/internal/domain"
)

func TestClassifyTextPrecedence(t *testing.T) {
	c := Classify(RawMessage{Content: &waE2E.Message{
		Conversation: proto.String("plain"),
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("extended"),
		},
	}})
	assert.Equal(t, "plain", c.Text)
	assert.Equal(t, domain.KindText, c.Kind)

	c = Classify(RawMessage{Content: &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("extended"),
		},
	}})
	assert.Equal(t, "extended", c.Text)

	c = Classify(RawMessage{Content: &waE2E.Message{}})
	assert.Equal(t, MediaPlaceholder, c.Text)
}

func TestClassifyMediaKinds(t *testing.T) {
	tests := []struct {
		name     string
		content  *waE2E.Message
		kind     string
		fileURL  string
		fileName string
	}{
		{
			name:     "audio",
			content:  &waE2E.Message{AudioMessage: &waE2E.AudioMessage{URL: proto.String("https://cdn/a")}},
			kind:     domain.KindAudio,
			fileURL:  "https://cdn/a",
			fileName: "audio.ogg",
		},
		{
			name:     "image",
			content:  &waE2E.Message{ImageMessage: &waE2E.ImageMessage{URL: proto.String("https://cdn/i")}},
			kind:     domain.KindImage,
			fileURL:  "https://cdn/i",
			fileName: "image.jpg",
		},
		{
			name:     "video",
			content:  &waE2E.Message{VideoMessage: &waE2E.VideoMessage{URL: proto.String("https://cdn/v")}},
			kind:     domain.KindVideo,
			fileURL:  "https://cdn/v",
			fileName: "video.mp4",
		},
		{
			name: "document with name",
			content: &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
				URL:      proto.String("https://cdn/d"),
				FileName: proto.String("contrato.pdf"),
			}},
			kind:     domain.KindDocument,
			fileURL:  "https://cdn/d",
			fileName: "contrato.pdf",
		},
		{
			name:     "document without name",
			content:  &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{URL: proto.String("https://cdn/d")}},
			kind:     domain.KindDocument,
			fileURL:  "https://cdn/d",
			fileName: "document",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(RawMessage{Content: tt.content})
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.fileURL, c.FileURL)
			assert.Equal(t, tt.fileName, c.FileName)
			assert.Equal(t, MediaPlaceholder, c.Text)
		})
	}
}

func TestClassifySenderFields(t *testing.T) {
	// group message from another participant carries sender identity
	c := Classify(RawMessage{
		IsGroup:   true,
		SenderJid: "5511999990000@s.whatsapp.net",
		PushName:  "Maria",
		Content:   &waE2E.Message{Conversation: proto.String("oi")},
	})
	assert.Equal(t, "5511999990000@s.whatsapp.net", c.SenderJid)
	assert.Equal(t, "Maria", c.SenderName)

	// missing push name falls back to the jid local part
	c = Classify(RawMessage{
		IsGroup:   true,
		SenderJid: "5511999990000@s.whatsapp.net",
		Content:   &waE2E.Message{Conversation: proto.String("oi")},
	})
	assert.Equal(t, "5511999990000", c.SenderName)

	// direct chats and self-authored group messages carry no sender fields
	c = Classify(RawMessage{
		SenderJid: "5511999990000@s.whatsapp.net",
		PushName:  "Maria",
		Content:   &waE2E.Message{Conversation: proto.String("oi")},
	})
	assert.Empty(t, c.SenderJid)
	assert.Empty(t, c.SenderName)

	c = Classify(RawMessage{
		IsGroup:   true,
		FromMe:    true,
		SenderJid: "5511888880000@s.whatsapp.net",
		Content:   &waE2E.Message{Conversation: proto.String("oi")},
	})
	assert.Empty(t, c.SenderJid)
	assert.Empty(t, c.SenderName)
}

func TestRawMessageHasContent(t *testing.T) {
	assert.False(t, RawMessage{}.HasContent())
	assert.True(t, RawMessage{Content: &waE2E.Message{}}.HasContent())
}

func TestNormalizeJid(t *testing.T) {
	assert.Equal(t, "5511999990000@s.whatsapp.net", NormalizeJid("5511999990000"))
	assert.Equal(t, "5511999990000@s.whatsapp.net", NormalizeJid("5511999990000@s.whatsapp.net"))
	assert.Equal(t, "123-456@g.us", NormalizeJid("123-456@g.us"))
}
