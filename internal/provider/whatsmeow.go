// Package provider adapts the whatsmeow client to the session boundary: one
// credential-store device and one client per closer, with provider callbacks
// translated into typed session events.
package provider

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/idealis-crm/wabridge/internal/ledger"
	"github.com/idealis-crm/wabridge/internal/session"
)

// closerMarker tags a credential-store device with the owning closer so the
// device survives restarts and can be found again on the next dial.
func closerMarker(closerID string) string {
	return "closer:" + closerID
}

// Whatsmeow hands out per-closer provider connections backed by a shared
// sqlstore credential container. Credential rotation is handled inside the
// container; this adapter only creates, finds and deletes devices.
type Whatsmeow struct {
	container  *sqlstore.Container
	deviceName string
}

// NewWhatsmeow wraps an existing database handle so whatsmeow credential
// tables live in the application database.
func NewWhatsmeow(ctx context.Context, sqlDB *sql.DB, driver, deviceName string) (*Whatsmeow, error) {
	container := sqlstore.NewWithDB(sqlDB, driver, nil)
	if err := container.Upgrade(); err != nil {
		return nil, fmt.Errorf("sqlstore upgrade failed: %w", err)
	}
	return &Whatsmeow{container: container, deviceName: deviceName}, nil
}

// Dial finds or creates the closer's device and builds a client for it.
// Provider events are pushed into the session's event channel; whatsmeow's
// own auto-reconnect is disabled so the session's reconnect policy is the
// only one driving retries.
func (p *Whatsmeow) Dial(ctx context.Context, closerID string, evs chan<- session.Event) (session.Conn, error) {
	device, err := p.deviceFor(ctx, closerID)
	if err != nil {
		return nil, err
	}
	client := whatsmeow.NewClient(device, nil)
	client.EnableAutoReconnect = false
	conn := &waConn{
		closerID:  closerID,
		container: p.container,
		client:    client,
		events:    evs,
	}
	client.AddEventHandler(conn.translate)
	return conn, nil
}

func (p *Whatsmeow) deviceFor(ctx context.Context, closerID string) (*store.Device, error) {
	devices, err := p.container.GetAllDevices()
	if err != nil {
		return nil, fmt.Errorf("list stored devices: %w", err)
	}
	marker := closerMarker(closerID)
	for _, d := range devices {
		if d.BusinessName == marker {
			return d, nil
		}
	}
	device := p.container.NewDevice()
	device.PushName = p.deviceName
	device.BusinessName = marker
	zap.L().Info("provider: provisioned new device", zap.String("closer_id", closerID))
	return device, nil
}

type waConn struct {
	closerID  string
	container *sqlstore.Container
	client    *whatsmeow.Client
	events    chan<- session.Event
}

// translate maps whatsmeow callbacks onto the session's typed events,
// preserving arrival order for the tenant.
func (c *waConn) translate(evt interface{}) {
	switch e := evt.(type) {
	case *events.QR:
		if len(e.Codes) > 0 {
			c.events <- session.QREvent{Code: e.Codes[0]}
		}
	case *events.Connected:
		c.events <- session.OpenedEvent{}
	case *events.LoggedOut:
		c.events <- session.ClosedEvent{Code: session.CloseCodeLoggedOut}
	case *events.ClientOutdated:
		c.events <- session.ClosedEvent{Code: session.CloseCodeBadSession}
	case *events.Disconnected, *events.StreamReplaced:
		c.events <- session.ClosedEvent{}
	case *events.Message:
		c.events <- session.InboundEvent{Messages: []session.RawMessage{{
			ID:        string(e.Info.ID),
			ChatJid:   e.Info.Chat.String(),
			SenderJid: e.Info.Sender.String(),
			PushName:  e.Info.PushName,
			FromMe:    e.Info.IsFromMe,
			IsGroup:   e.Info.IsGroup,
			Timestamp: e.Info.Timestamp,
			Content:   e.Message,
		}}}
	}
}

func (c *waConn) Connect(ctx context.Context) error {
	return c.client.Connect()
}

func (c *waConn) SendText(ctx context.Context, jid, text string) error {
	to, err := waTypes.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("invalid jid %q: %w", jid, err)
	}
	_, err = c.client.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
	return err
}

func (c *waConn) Logout(ctx context.Context) error {
	if c.client.Store.ID == nil {
		// never paired, nothing to log out of
		c.client.Disconnect()
		return nil
	}
	return c.client.Logout()
}

func (c *waConn) FetchRoster(ctx context.Context) (session.Roster, error) {
	var roster session.Roster
	groups, err := c.client.GetJoinedGroups()
	if err != nil {
		return roster, fmt.Errorf("fetch groups: %w", err)
	}
	for _, g := range groups {
		participants := make([]string, 0, len(g.Participants))
		for _, p := range g.Participants {
			participants = append(participants, p.JID.String())
		}
		roster.Groups = append(roster.Groups, ledger.GroupEntry{
			Jid:          g.JID.String(),
			Name:         g.Name,
			Participants: participants,
		})
	}
	contacts, err := c.client.Store.Contacts.GetAllContacts()
	if err != nil {
		// groups already collected; direct chats are best-effort
		zap.L().Warn("provider: contact list unavailable",
			zap.String("closer_id", c.closerID), zap.Error(err))
		return roster, nil
	}
	for jid, info := range contacts {
		if jid.Server != waTypes.DefaultUserServer {
			continue
		}
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		roster.Chats = append(roster.Chats, ledger.ChatEntry{Jid: jid.String(), Name: name})
	}
	return roster, nil
}

// PurgeCredentials drops the closer's device from the credential store. The
// next connection attempt will pair from scratch.
func (c *waConn) PurgeCredentials(ctx context.Context) error {
	zap.L().Info("provider: purging credentials", zap.String("closer_id", c.closerID))
	return c.container.DeleteDevice(c.client.Store)
}

func (c *waConn) Close() {
	c.client.Disconnect()
}
