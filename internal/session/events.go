package session

import (
	"context"
	"time"

	"github.com/idealis-crm/wabridge/internal/domain"
	"github.com/idealis-crm/wabridge/internal/ledger"
	"github.com/idealis-crm/wabridge/internal/notify"
)

// Event is one provider-, timer- or command-originated input to a session
// state machine. Events for a tenant are processed in arrival order on the
// machine's own goroutine; different tenants are fully independent.
type Event interface{ isEvent() }

// QREvent carries a scan challenge from the provider.
type QREvent struct{ Code string }

// OpenedEvent signals an established provider connection.
type OpenedEvent struct{}

// ClosedEvent signals a closed provider connection with its cause code.
type ClosedEvent struct{ Code int }

// InboundEvent carries a batch of inbound provider messages.
type InboundEvent struct{ Messages []RawMessage }

type retryEvent struct{}
type resyncEvent struct{}
type attachEvent struct{ sink notify.Sink }

type sendCmd struct {
	jid   string
	text  string
	reply chan error
}

type markReadCmd struct {
	contactID int64
	reply     chan error
}

type terminateCmd struct{ reply chan error }

func (QREvent) isEvent()      {}
func (OpenedEvent) isEvent()  {}
func (ClosedEvent) isEvent()  {}
func (InboundEvent) isEvent() {}
func (retryEvent) isEvent()   {}
func (resyncEvent) isEvent()  {}
func (attachEvent) isEvent()  {}
func (sendCmd) isEvent()      {}
func (markReadCmd) isEvent()  {}
func (terminateCmd) isEvent() {}

// Roster is the combined set of group and direct chats known to the provider
// for a tenant.
type Roster struct {
	Groups []ledger.GroupEntry
	Chats  []ledger.ChatEntry
}

// Conn is one tenant's live provider connection. Only the owning state
// machine may use it; the machine serializes all calls with its own state
// transitions.
type Conn interface {
	Connect(ctx context.Context) error
	SendText(ctx context.Context, jid, text string) error
	Logout(ctx context.Context) error
	FetchRoster(ctx context.Context) (Roster, error)
	// PurgeCredentials wipes stored credential material after a terminal
	// disconnect.
	PurgeCredentials(ctx context.Context) error
	Close()
}

// Dialer hands out provider connections. Provider events for the tenant are
// pushed into the given channel.
type Dialer interface {
	Dial(ctx context.Context, closerID string, events chan<- Event) (Conn, error)
}

// Store is the persistent-store boundary the session core writes through.
// Implemented by *ledger.Ledger.
type Store interface {
	UpsertSessionStatus(ctx context.Context, closerID, status string) error
	SetSessionQR(ctx context.Context, closerID, qr string) error
	SessionStatus(ctx context.Context, closerID string) (string, error)
	RecordInbound(ctx context.Context, closerID string, in ledger.InboundMessage) (*domain.WaContact, error)
	SyncRoster(ctx context.Context, closerID string, groups []ledger.GroupEntry, chats []ledger.ChatEntry) error
	MarkRead(ctx context.Context, closerID string, contactID int64) error
}

// Config tunes session behaviour; zero values fall back to defaults.
type Config struct {
	ReconnectDelay time.Duration
	IgnoreSelf     bool
	DebugQR        bool
}

const defaultReconnectDelay = 5 * time.Second

func (c Config) reconnectDelay() time.Duration {
	if c.ReconnectDelay > 0 {
		return c.ReconnectDelay
	}
	return defaultReconnectDelay
}
