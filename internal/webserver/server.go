// Package webserver exposes the process surface: a liveness endpoint and the
// per-client WebSocket command channel.
package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/idealis-crm/wabridge/config"
	"github.com/idealis-crm/wabridge/internal/session"
)

type Server struct {
	cfg      *config.AppConfig
	root     *echo.Echo
	manager  *session.Manager
	upgrader websocket.Upgrader
	startAt  time.Time
}

func NewServer(cfg *config.AppConfig, manager *session.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		root:    echo.New(),
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// the channel is fronted by the CRM gateway
				return true
			},
		},
		startAt: time.Now(),
	}
	s.root.HideBanner = true
	s.root.HidePort = true
	s.root.GET("/health", s.getHealth)
	s.root.GET("/ws", s.handleWS)
	return s
}

// getHealth reports liveness: active session count and process uptime.
func (s *Server) getHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"activeSessions": s.manager.ActiveCount(),
		"uptime":         time.Since(s.startAt).Seconds(),
	})
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Web.Host, s.cfg.Web.Port)
	zap.L().Info("webserver: listening", zap.String("addr", addr))
	return s.root.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.root.Shutdown(ctx)
}
