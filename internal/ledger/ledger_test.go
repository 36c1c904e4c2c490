package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/idealis-crm/wabridge/internal/domain"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(domain.Tables...))
	return New(db)
}

func inbound(id, jid, text string) InboundMessage {
	return InboundMessage{
		WaMessageID: id,
		ChatJid:     jid,
		Text:        text,
		Kind:        domain.KindText,
		Timestamp:   time.Now(),
	}
}

func TestRecordInboundCreatesContact(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	contact, err := l.RecordInbound(ctx, "closer-1", inbound("MSG1", "5511999990000@s.whatsapp.net", "oi"))
	require.NoError(t, err)
	assert.NotZero(t, contact.ID)
	// no push name available, fall back to the jid local part
	assert.Equal(t, "5511999990000", contact.Name)
	assert.Equal(t, 1, contact.Unread)
	assert.Equal(t, "oi", contact.LastMessage)

	var msg domain.WaMessage
	require.NoError(t, l.db.Where("closer_id = ? AND wa_message_id = ?", "closer-1", "MSG1").First(&msg).Error)
	assert.Equal(t, contact.ID, msg.ContactID)
	assert.Equal(t, domain.DirectionInbound, msg.Direction)
	assert.False(t, msg.Read)
}

func TestRecordInboundDeduplicates(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	first, err := l.RecordInbound(ctx, "closer-1", inbound("MSG1", "5511999990000@s.whatsapp.net", "oi"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Unread)

	// re-delivery of the same provider id must not double-count
	second, err := l.RecordInbound(ctx, "closer-1", inbound("MSG1", "5511999990000@s.whatsapp.net", "oi"))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Unread)

	var count int64
	require.NoError(t, l.db.Model(&domain.WaMessage{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// the same provider id under a different closer is a distinct message
	_, err = l.RecordInbound(ctx, "closer-2", inbound("MSG1", "5511999990000@s.whatsapp.net", "oi"))
	require.NoError(t, err)
	require.NoError(t, l.db.Model(&domain.WaMessage{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestRecordInboundUnreadAccounting(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	jid := "5511999990000@s.whatsapp.net"

	_, err := l.RecordInbound(ctx, "closer-1", inbound("MSG1", jid, "primeira"))
	require.NoError(t, err)
	contact, err := l.RecordInbound(ctx, "closer-1", inbound("MSG2", jid, "segunda"))
	require.NoError(t, err)
	assert.Equal(t, 2, contact.Unread)
	assert.Equal(t, "segunda", contact.LastMessage)

	// a self-sent reply means the closer has seen the chat
	self := inbound("MSG3", jid, "respondida")
	self.FromMe = true
	contact, err = l.RecordInbound(ctx, "closer-1", self)
	require.NoError(t, err)
	assert.Equal(t, 0, contact.Unread)

	var msg domain.WaMessage
	require.NoError(t, l.db.Where("wa_message_id = ?", "MSG3").First(&msg).Error)
	assert.Equal(t, domain.DirectionOutbound, msg.Direction)
	assert.True(t, msg.Read)
}

func TestMarkRead(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	contact, err := l.RecordInbound(ctx, "closer-1", inbound("MSG1", "5511999990000@s.whatsapp.net", "oi"))
	require.NoError(t, err)
	require.Equal(t, 1, contact.Unread)

	require.NoError(t, l.MarkRead(ctx, "closer-1", contact.ID))

	var got domain.WaContact
	require.NoError(t, l.db.First(&got, contact.ID).Error)
	assert.Equal(t, 0, got.Unread)

	// another closer cannot reset it
	_, err = l.RecordInbound(ctx, "closer-1", inbound("MSG2", "5511999990000@s.whatsapp.net", "de novo"))
	require.NoError(t, err)
	require.NoError(t, l.MarkRead(ctx, "closer-2", contact.ID))
	require.NoError(t, l.db.First(&got, contact.ID).Error)
	assert.Equal(t, 1, got.Unread)
}

func TestSyncRosterUpserts(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	groups := []GroupEntry{{
		Jid:          "123-456@g.us",
		Name:         "Equipe Vendas",
		Participants: []string{"5511999990000@s.whatsapp.net", "5511888880000@s.whatsapp.net"},
	}}
	chats := []ChatEntry{{Jid: "5511999990000@s.whatsapp.net", Name: "Maria"}}
	require.NoError(t, l.SyncRoster(ctx, "closer-1", groups, chats))

	var group domain.WaContact
	require.NoError(t, l.db.Where("closer_id = ? AND jid = ?", "closer-1", "123-456@g.us").First(&group).Error)
	assert.Equal(t, "Equipe Vendas", group.Name)
	assert.True(t, group.IsGroup)
	assert.Len(t, group.Participants, 2)

	// a renamed group refreshes in place instead of duplicating
	groups[0].Name = "Equipe Comercial"
	groups[0].Participants = append(groups[0].Participants, "5511777770000@s.whatsapp.net")
	require.NoError(t, l.SyncRoster(ctx, "closer-1", groups, chats))

	var count int64
	require.NoError(t, l.db.Model(&domain.WaContact{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
	require.NoError(t, l.db.Where("closer_id = ? AND jid = ?", "closer-1", "123-456@g.us").First(&group).Error)
	assert.Equal(t, "Equipe Comercial", group.Name)
	assert.Len(t, group.Participants, 3)
}

func TestSyncRosterPreservesUnreadAndPreview(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	jid := "5511999990000@s.whatsapp.net"

	contact, err := l.RecordInbound(ctx, "closer-1", inbound("MSG1", jid, "oi"))
	require.NoError(t, err)
	require.Equal(t, 1, contact.Unread)

	require.NoError(t, l.SyncRoster(ctx, "closer-1", nil, []ChatEntry{{Jid: jid, Name: "Maria"}}))

	var got domain.WaContact
	require.NoError(t, l.db.First(&got, contact.ID).Error)
	assert.Equal(t, "Maria", got.Name)
	assert.Equal(t, 1, got.Unread)
	assert.Equal(t, "oi", got.LastMessage)

	// contacts absent from a later roster are kept
	require.NoError(t, l.SyncRoster(ctx, "closer-1", nil, nil))
	require.NoError(t, l.db.First(&got, contact.ID).Error)
}

func TestSessionStatusLifecycle(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// no row yet reads as disconnected
	status, err := l.SessionStatus(ctx, "closer-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionDisconnected, status)

	require.NoError(t, l.UpsertSessionStatus(ctx, "closer-1", domain.SessionConnecting))
	require.NoError(t, l.SetSessionQR(ctx, "closer-1", "qr-payload"))

	status, err = l.SessionStatus(ctx, "closer-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionWaitingScan, status)

	var row domain.WaSession
	require.NoError(t, l.db.Where("closer_id = ?", "closer-1").First(&row).Error)
	assert.Equal(t, "qr-payload", row.QrCode)

	// moving past the scan clears the stale challenge
	require.NoError(t, l.UpsertSessionStatus(ctx, "closer-1", domain.SessionConnected))
	require.NoError(t, l.db.Where("closer_id = ?", "closer-1").First(&row).Error)
	assert.Equal(t, domain.SessionConnected, row.Status)
	assert.Empty(t, row.QrCode)

	// one row per closer across transitions
	var count int64
	require.NoError(t, l.db.Model(&domain.WaSession{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
