package notify

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeWireShape(t *testing.T) {
	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{
			"qr code",
			QRCode{QRCode: "abc", QRDataURL: "data:image/png;base64,xyz"},
			`{"qrCode":"abc","qrDataUrl":"data:image/png;base64,xyz","type":"QR_CODE"}`,
		},
		{
			"connected",
			Connected{Message: "WhatsApp conectado com sucesso!"},
			`{"message":"WhatsApp conectado com sucesso!","type":"CONNECTED"}`,
		},
		{
			"disconnected",
			Disconnected{Reason: "LOGGED_OUT"},
			`{"reason":"LOGGED_OUT","type":"DISCONNECTED"}`,
		},
		{
			"new message",
			NewMessage{
				Contact: ContactRef{ID: 42, Jid: "5511999990000@s.whatsapp.net", Name: "Maria"},
				Message: "oi",
			},
			`{"contact":{"id":"42","telefone":"5511999990000@s.whatsapp.net","nome":"Maria"},"message":"oi","type":"NEW_MESSAGE"}`,
		},
		{
			"error",
			Error{Message: "boom"},
			`{"message":"boom","type":"ERROR"}`,
		},
		{
			"session status",
			SessionStatus{Status: "connected"},
			`{"status":"connected","type":"SESSION_STATUS"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(Envelope(tt.n))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestRenderQRDataURL(t *testing.T) {
	url, err := RenderQRDataURL("2@scan-me")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	assert.Greater(t, len(url), len("data:image/png;base64,"))
}
