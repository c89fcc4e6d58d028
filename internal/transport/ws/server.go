// Package ws carries both sides of the terminal conversation: the camera page
// pushes decoded frames in, the operator page issues actions, and every
// workflow transition is pushed back out as a state event.
package ws

import (
	"net/http"

	"qrgate/internal/generator"
	"qrgate/internal/repo"
	"qrgate/internal/workflow"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades connections and hands each one to a Handler.
type Server struct {
	Machine   *workflow.Machine
	Generator *generator.Generator
	Repo      repo.Repository
	Upgrader  websocket.Upgrader
	Log       *zap.Logger
}

func NewServer(m *workflow.Machine, g *generator.Generator, r repo.Repository, log *zap.Logger) *Server {
	return &Server{
		Machine:   m,
		Generator: g,
		Repo:      r,
		Upgrader: websocket.Upgrader{
			// the camera page is served from the backend origin, not ours
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		Log: log,
	}
}

// ServeHTTP handles the websocket handshake and runs the connection loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	s.Log.Info("ws connected", zap.String("remote", r.RemoteAddr))
	h := NewHandler(conn, s.Machine, s.Generator, s.Repo, s.Log)
	h.Loop()
}
