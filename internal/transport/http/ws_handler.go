package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"voice-quiz-control/internal/controlplane"
)

const (
	defaultRoomName = "default-room"
	maxFrameBytes   = 1 << 20
)

// ServeWS attaches a media gateway. The gateway owns the real-time session and relays
// it as frames; only one gateway may be attached at a time.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomName := r.URL.Query().Get("room")
	if roomName == "" {
		roomName = defaultRoomName
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var agents controlplane.AgentDispatcher
	if s.deps.Agents.Configured() {
		agents = s.deps.Agents
	} else {
		s.log.Warn("agent dispatch disabled; livekit is not configured", "room", roomName)
	}

	// the bridge and session tag their own component
	bridge := NewBridge(roomName, s.deps.Logger)
	session := controlplane.NewSession(bridge, s.deps.Dispatcher, s.deps.Latch, agents, controlplane.Options{
		SessionID: sessionID,
		Logger:    s.deps.Logger,
	})
	if !s.claim(session) {
		http.Error(w, "a gateway session is already attached", http.StatusConflict)
		return
	}
	defer s.release(session)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		bridge.writeLoop(conn)
	}()

	log := s.log.With("room", roomName, "session", sessionID, "bridge", bridge.ID())
	if err := session.Start(ctx); err != nil {
		log.Error("session start failed", "error", err)
		bridge.Close()
		<-writerDone
		return
	}
	log.Info("gateway attached")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info("gateway detached", "error", err)
			break
		}
		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			bridge.reject(f, "malformed frame: "+err.Error())
			continue
		}
		bridge.handleFrame(ctx, f)
	}

	bridge.Close()
	<-writerDone
	if err := session.Close(); err != nil {
		log.Warn("session close failed", "error", err)
	}
}

func (s *Server) claim(session *controlplane.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return false
	}
	s.active = session
	return true
}

func (s *Server) release(session *controlplane.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == session {
		s.active = nil
	}
}
