package session

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/idealis-crm/wabridge/internal/domain"
	"github.com/idealis-crm/wabridge/internal/ledger"
	"github.com/idealis-crm/wabridge/internal/notify"
)

// ErrNotConnected is returned for a send attempted before the provider
// connection is established.
var ErrNotConnected = errors.New("session not connected")

// ErrSessionClosed is returned for commands submitted after the session's
// event loop has exited.
var ErrSessionClosed = errors.New("session closed")

const connectedMessage = "WhatsApp conectado com sucesso!"

// Machine drives one closer's session lifecycle. All provider events and
// commands flow through a single ordered event channel consumed on the
// machine's own goroutine, so connection operations never race state
// transitions.
type Machine struct {
	closerID string
	dialer   Dialer
	store    Store
	cfg      Config

	events chan Event
	conn   Conn
	sink   notify.Sink
	status string
	retry  *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMachine(closerID string, dialer Dialer, store Store, cfg Config, sink notify.Sink) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		closerID: closerID,
		dialer:   dialer,
		store:    store,
		cfg:      cfg,
		events:   make(chan Event, 128),
		sink:     sink,
		status:   domain.SessionConnecting,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (m *Machine) CloserID() string { return m.closerID }

// Start launches the event loop and begins initialization.
func (m *Machine) Start() {
	go m.run()
}

func (m *Machine) run() {
	defer close(m.done)
	m.initialize()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.events:
			if m.handle(ev) {
				return
			}
		}
	}
}

func (m *Machine) initialize() {
	m.setStatus(domain.SessionConnecting)
	conn, err := m.dialer.Dial(m.ctx, m.closerID, m.events)
	if err != nil {
		m.fail(err)
		return
	}
	m.conn = conn
	if err := m.conn.Connect(m.ctx); err != nil {
		m.fail(err)
	}
}

// fail marks an initialization failure: terminal, reported to the client, no
// automatic retry.
func (m *Machine) fail(err error) {
	zap.L().Error("session: initialization failed",
		zap.String("closer_id", m.closerID), zap.Error(err))
	m.setStatus(domain.SessionFailed)
	m.emit(notify.Error{Message: err.Error()})
}

// handle processes one event; it returns true when the machine must stop.
func (m *Machine) handle(ev Event) bool {
	switch ev := ev.(type) {
	case QREvent:
		m.handleQR(ev.Code)
	case OpenedEvent:
		m.handleOpened()
	case ClosedEvent:
		m.handleClosed(ev.Code)
	case retryEvent:
		m.handleRetry()
	case resyncEvent:
		if m.status == domain.SessionConnected {
			m.syncRoster()
		}
	case InboundEvent:
		m.handleInbound(ev.Messages)
	case attachEvent:
		m.handleAttach(ev.sink)
	case sendCmd:
		ev.reply <- m.handleSend(ev.jid, ev.text)
	case markReadCmd:
		ev.reply <- m.handleMarkRead(ev.contactID)
	case terminateCmd:
		m.handleTerminate()
		ev.reply <- nil
		return true
	}
	return false
}

func (m *Machine) handleQR(code string) {
	m.status = domain.SessionWaitingScan
	if err := m.store.SetSessionQR(m.ctx, m.closerID, code); err != nil {
		zap.L().Warn("session: persist qr failed",
			zap.String("closer_id", m.closerID), zap.Error(err))
	}
	dataURL, err := notify.RenderQRDataURL(code)
	if err != nil {
		zap.L().Warn("session: qr render failed",
			zap.String("closer_id", m.closerID), zap.Error(err))
	}
	if m.cfg.DebugQR {
		qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
	}
	zap.L().Info("session: scan challenge received", zap.String("closer_id", m.closerID))
	m.emit(notify.QRCode{QRCode: code, QRDataURL: dataURL})
}

func (m *Machine) handleOpened() {
	m.setStatus(domain.SessionConnected)
	zap.L().Info("session: connected", zap.String("closer_id", m.closerID))
	m.emit(notify.Connected{Message: connectedMessage})
	m.syncRoster()
}

func (m *Machine) handleClosed(code int) {
	decision := ClassifyClose(code, m.cfg.reconnectDelay())
	if decision.PurgeCredentials() && m.conn != nil {
		if err := m.conn.PurgeCredentials(m.ctx); err != nil {
			zap.L().Error("session: credential purge failed",
				zap.String("closer_id", m.closerID), zap.Error(err))
		}
	}
	m.setStatus(domain.SessionDisconnected)
	if decision.Action == ActionRetry {
		zap.L().Info("session: transient disconnect, retry scheduled",
			zap.String("closer_id", m.closerID), zap.Int("code", code),
			zap.Duration("delay", decision.Delay))
		m.scheduleRetry(decision.Delay)
		return
	}
	zap.L().Warn("session: terminal disconnect",
		zap.String("closer_id", m.closerID), zap.Int("code", code),
		zap.String("reason", decision.Reason))
	m.emit(notify.Disconnected{Reason: decision.Reason})
}

func (m *Machine) handleRetry() {
	m.setStatus(domain.SessionConnecting)
	if err := m.conn.Connect(m.ctx); err != nil {
		m.fail(err)
	}
}

func (m *Machine) handleInbound(messages []RawMessage) {
	for _, raw := range messages {
		if !raw.HasContent() {
			continue
		}
		if raw.FromMe && m.cfg.IgnoreSelf {
			continue
		}
		c := Classify(raw)
		chatName := raw.PushName
		if raw.IsGroup {
			// push name belongs to the sender, not the group
			chatName = ""
		}
		contact, err := m.store.RecordInbound(m.ctx, m.closerID, ledger.InboundMessage{
			WaMessageID: raw.ID,
			ChatJid:     raw.ChatJid,
			ChatName:    chatName,
			IsGroup:     raw.IsGroup,
			FromMe:      raw.FromMe,
			Text:        c.Text,
			Kind:        c.Kind,
			FileURL:     c.FileURL,
			FileName:    c.FileName,
			SenderJid:   c.SenderJid,
			SenderName:  c.SenderName,
			Timestamp:   raw.Timestamp,
		})
		if err != nil {
			zap.L().Warn("session: record message failed",
				zap.String("closer_id", m.closerID),
				zap.String("wa_message_id", raw.ID), zap.Error(err))
			continue
		}
		m.emit(notify.NewMessage{
			Contact: notify.ContactRef{ID: contact.ID, Jid: contact.Jid, Name: contact.Name},
			Message: c.Text,
		})
	}
}

func (m *Machine) handleAttach(sink notify.Sink) {
	m.sink = sink
	status, err := m.store.SessionStatus(m.ctx, m.closerID)
	if err != nil {
		zap.L().Warn("session: status lookup failed",
			zap.String("closer_id", m.closerID), zap.Error(err))
		status = m.status
	}
	m.emit(notify.SessionStatus{Status: status})
}

func (m *Machine) handleSend(jid, text string) error {
	if m.conn == nil {
		return ErrNotConnected
	}
	if err := m.conn.SendText(m.ctx, jid, text); err != nil {
		zap.L().Warn("session: send failed",
			zap.String("closer_id", m.closerID), zap.String("jid", jid), zap.Error(err))
		return err
	}
	zap.L().Info("session: message sent",
		zap.String("closer_id", m.closerID), zap.String("jid", jid))
	return nil
}

func (m *Machine) handleMarkRead(contactID int64) error {
	if err := m.store.MarkRead(m.ctx, m.closerID, contactID); err != nil {
		zap.L().Warn("session: mark read failed",
			zap.String("closer_id", m.closerID), zap.Int64("contact_id", contactID), zap.Error(err))
		return err
	}
	return nil
}

func (m *Machine) handleTerminate() {
	m.stopRetry()
	if m.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.conn.Logout(ctx); err != nil {
			zap.L().Warn("session: logout failed",
				zap.String("closer_id", m.closerID), zap.Error(err))
		}
		cancel()
		m.conn.Close()
	}
	m.setStatus(domain.SessionDisconnected)
	zap.L().Info("session: terminated", zap.String("closer_id", m.closerID))
	m.cancel()
}

// syncRoster fetches all groups and known direct chats and upserts them.
// Failures are logged, not fatal: sync never blocks the connected state.
func (m *Machine) syncRoster() {
	roster, err := m.conn.FetchRoster(m.ctx)
	if err != nil {
		zap.L().Warn("session: roster fetch failed",
			zap.String("closer_id", m.closerID), zap.Error(err))
		return
	}
	if err := m.store.SyncRoster(m.ctx, m.closerID, roster.Groups, roster.Chats); err != nil {
		zap.L().Warn("session: roster sync failed",
			zap.String("closer_id", m.closerID), zap.Error(err))
		return
	}
	zap.L().Info("session: roster synced",
		zap.String("closer_id", m.closerID),
		zap.Int("groups", len(roster.Groups)), zap.Int("chats", len(roster.Chats)))
}

func (m *Machine) scheduleRetry(delay time.Duration) {
	m.stopRetry()
	m.retry = time.AfterFunc(delay, func() {
		select {
		case m.events <- retryEvent{}:
		case <-m.done:
		}
	})
}

func (m *Machine) stopRetry() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Machine) setStatus(status string) {
	m.status = status
	if err := m.store.UpsertSessionStatus(m.ctx, m.closerID, status); err != nil {
		zap.L().Warn("session: persist status failed",
			zap.String("closer_id", m.closerID), zap.String("status", status), zap.Error(err))
	}
}

// emit delivers a notification to the live subscriber, if any. Delivery is
// fire-and-forget: a gone subscriber never aborts the session.
func (m *Machine) emit(n notify.Notification) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Send(n); err != nil {
		zap.L().Debug("session: notification dropped",
			zap.String("closer_id", m.closerID), zap.Error(err))
	}
}

// Attach replaces the live subscriber and reports the persisted status to it.
func (m *Machine) Attach(ctx context.Context, sink notify.Sink) error {
	return m.submit(ctx, attachEvent{sink: sink})
}

// SendText sends a text message to the given address. Bare phone numbers get
// the default user server suffix.
func (m *Machine) SendText(ctx context.Context, phone, text string) error {
	cmd := sendCmd{jid: NormalizeJid(phone), text: text, reply: make(chan error, 1)}
	if err := m.submit(ctx, cmd); err != nil {
		return err
	}
	return m.await(ctx, cmd.reply)
}

// MarkRead resets the unread counter of a contact.
func (m *Machine) MarkRead(ctx context.Context, contactID int64) error {
	cmd := markReadCmd{contactID: contactID, reply: make(chan error, 1)}
	if err := m.submit(ctx, cmd); err != nil {
		return err
	}
	return m.await(ctx, cmd.reply)
}

// Terminate logs the session out and stops the event loop. A pending
// reconnect is cancelled so an explicit teardown is never resurrected.
func (m *Machine) Terminate(ctx context.Context) error {
	cmd := terminateCmd{reply: make(chan error, 1)}
	if err := m.submit(ctx, cmd); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return nil
		}
		return err
	}
	return m.await(ctx, cmd.reply)
}

// Resync requests a roster re-sync; ignored unless the session is connected.
func (m *Machine) Resync() {
	select {
	case m.events <- resyncEvent{}:
	case <-m.done:
	default:
	}
}

func (m *Machine) submit(ctx context.Context, ev Event) error {
	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NormalizeJid appends the default user server to bare phone numbers.
func NormalizeJid(phone string) string {
	if strings.ContainsRune(phone, '@') {
		return phone
	}
	return phone + "@s.whatsapp.net"
}
