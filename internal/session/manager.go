package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/idealis-crm/wabridge/internal/notify"
)

// ErrSessionNotFound is returned for commands referencing a closer without a
// live session.
var ErrSessionNotFound = errors.New("session not found")

// Manager is the tenant-keyed registry of session state machines. It
// guarantees at most one live machine per closer: same-closer calls are
// serialized, different closers proceed independently.
type Manager struct {
	dialer Dialer
	store  Store
	cfg    Config

	mu       sync.Mutex
	sessions map[string]*Machine
}

func NewManager(dialer Dialer, store Store, cfg Config) *Manager {
	return &Manager{
		dialer:   dialer,
		store:    store,
		cfg:      cfg,
		sessions: make(map[string]*Machine),
	}
}

// CreateOrAttach returns the closer's live session, attaching the sink as its
// new notification target, or creates and starts a new one. The check-then-act
// is atomic: concurrent calls for the same closer never yield two machines.
func (mgr *Manager) CreateOrAttach(ctx context.Context, closerID string, sink notify.Sink) (*Machine, error) {
	mgr.mu.Lock()
	m, ok := mgr.sessions[closerID]
	if !ok {
		m = NewMachine(closerID, mgr.dialer, mgr.store, mgr.cfg, sink)
		mgr.sessions[closerID] = m
		mgr.mu.Unlock()
		zap.L().Info("manager: creating session", zap.String("closer_id", closerID))
		m.Start()
		return m, nil
	}
	mgr.mu.Unlock()
	zap.L().Info("manager: attaching to existing session", zap.String("closer_id", closerID))
	if err := m.Attach(ctx, sink); err != nil {
		return nil, err
	}
	return m, nil
}

// Disconnect terminates and deregisters the closer's session. A missing
// session is a no-op.
func (mgr *Manager) Disconnect(ctx context.Context, closerID string) error {
	mgr.mu.Lock()
	m, ok := mgr.sessions[closerID]
	if ok {
		delete(mgr.sessions, closerID)
	}
	mgr.mu.Unlock()
	if !ok {
		return nil
	}
	return m.Terminate(ctx)
}

// DispatchSend forwards a send command to the closer's session.
func (mgr *Manager) DispatchSend(ctx context.Context, closerID, phone, text string) error {
	m, ok := mgr.lookup(closerID)
	if !ok {
		return ErrSessionNotFound
	}
	return m.SendText(ctx, phone, text)
}

// DispatchMarkRead forwards a mark-read command to the closer's session.
func (mgr *Manager) DispatchMarkRead(ctx context.Context, closerID string, contactID int64) error {
	m, ok := mgr.lookup(closerID)
	if !ok {
		return ErrSessionNotFound
	}
	return m.MarkRead(ctx, contactID)
}

// ActiveCount reports the number of registered sessions.
func (mgr *Manager) ActiveCount() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.sessions)
}

// ResyncAll requests a roster re-sync on every registered session.
func (mgr *Manager) ResyncAll() {
	for _, m := range mgr.snapshot() {
		m.Resync()
	}
}

// ShutdownAll terminates every registered session, best-effort: an individual
// termination error never fails the overall shutdown.
func (mgr *Manager) ShutdownAll(ctx context.Context) {
	mgr.mu.Lock()
	machines := make([]*Machine, 0, len(mgr.sessions))
	for _, m := range mgr.sessions {
		machines = append(machines, m)
	}
	mgr.sessions = make(map[string]*Machine)
	mgr.mu.Unlock()

	if len(machines) == 0 {
		return
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range machines {
		m := m
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := m.Terminate(tctx); err != nil {
				zap.L().Warn("manager: session shutdown failed",
					zap.String("closer_id", m.CloserID()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	zap.L().Info("manager: all sessions drained", zap.Int("count", len(machines)))
}

func (mgr *Manager) lookup(closerID string) (*Machine, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	m, ok := mgr.sessions[closerID]
	return m, ok
}

func (mgr *Manager) snapshot() []*Machine {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	machines := make([]*Machine, 0, len(mgr.sessions))
	for _, m := range mgr.sessions {
		machines = append(machines, m)
	}
	return machines
}
