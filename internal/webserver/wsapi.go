package webserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/idealis-crm/wabridge/internal/notify"
)

// Inbound command kinds. The set is closed; anything else is logged and
// ignored.
const (
	cmdInitSession = "INIT_SESSION"
	cmdDisconnect  = "DISCONNECT"
	cmdSendMessage = "SEND_MESSAGE"
	cmdMarkRead    = "MARK_READ"
)

type command struct {
	Type      string `json:"type"`
	CloserID  string `json:"closerId"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	ContactID string `json:"contactId"`
}

const commandTimeout = 30 * time.Second

// handleWS runs one frontend client's command loop. The connection binds to
// a closer on its INIT_SESSION; a dropped connection detaches the subscriber
// but keeps the session alive.
func (s *Server) handleWS(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	zap.L().Info("webserver: client connected", zap.String("remote", ws.RemoteAddr().String()))

	sink := &wsSink{conn: ws}
	var closerID string
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			sink.trySend(notify.Error{Message: "invalid command payload"})
			continue
		}
		s.dispatch(&closerID, cmd, sink)
	}
	if closerID != "" {
		// frontend gone, session stays alive until an explicit DISCONNECT
		zap.L().Info("webserver: client detached", zap.String("closer_id", closerID))
	}
	return nil
}

func (s *Server) dispatch(closerID *string, cmd command, sink *wsSink) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Type {
	case cmdInitSession:
		if cmd.CloserID == "" {
			sink.trySend(notify.Error{Message: "closerId is required"})
			return
		}
		*closerID = cmd.CloserID
		if _, err := s.manager.CreateOrAttach(ctx, cmd.CloserID, sink); err != nil {
			sink.trySend(notify.Error{Message: err.Error()})
		}
	case cmdDisconnect:
		if *closerID == "" {
			return
		}
		if err := s.manager.Disconnect(ctx, *closerID); err != nil {
			sink.trySend(notify.Error{Message: err.Error()})
		}
	case cmdSendMessage:
		if err := s.manager.DispatchSend(ctx, *closerID, cmd.Phone, cmd.Message); err != nil {
			sink.trySend(notify.Error{Message: err.Error()})
		}
	case cmdMarkRead:
		if err := s.manager.DispatchMarkRead(ctx, *closerID, cast.ToInt64(cmd.ContactID)); err != nil {
			sink.trySend(notify.Error{Message: err.Error()})
		}
	default:
		zap.L().Warn("webserver: unknown command", zap.String("type", cmd.Type))
	}
}

// wsSink delivers notifications to one frontend connection. Writes are
// serialized; session event loops and the command loop may both send.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(notify.Envelope(n))
}

func (s *wsSink) trySend(n notify.Notification) {
	if err := s.Send(n); err != nil {
		zap.L().Debug("webserver: notification write failed", zap.Error(err))
	}
}
