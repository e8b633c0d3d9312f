package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"voice-quiz-control/internal/agenttools"
	"voice-quiz-control/internal/livekit"
	"voice-quiz-control/internal/room"
	"voice-quiz-control/internal/rpc"
)

type tokenResponse struct {
	Token string `json:"token"`
}

// token issues a participant token for ?room= and ?username=.
func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	tokens := s.deps.Tokens
	if !tokens.Configured() {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server misconfigured. Missing LIVEKIT_API_KEY or LIVEKIT_API_SECRET"})
		return
	}
	roomName := r.URL.Query().Get("room")
	if roomName == "" {
		roomName = "default-room"
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		username = "user"
	}

	token, err := tokens.ParticipantToken(roomName, username)
	if err != nil {
		s.log.Error("token generation failed", "room", roomName, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to generate token"})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

type dispatchRequest struct {
	RoomName string `json:"roomName"`
}

type dispatchResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Dispatch livekit.Dispatch `json:"dispatch"`
}

func (s *Server) dispatchAgent(w http.ResponseWriter, r *http.Request) {
	agents := s.deps.Agents
	if !agents.Configured() {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server misconfigured. Missing LIVEKIT_API_KEY, LIVEKIT_API_SECRET, or LIVEKIT_URL"})
		return
	}
	var req dispatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if req.RoomName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing roomName"})
		return
	}

	dispatch, err := agents.CreateDispatch(r.Context(), req.RoomName)
	if err != nil {
		s.log.Error("agent dispatch failed", "room", req.RoomName, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.log.Info("agent dispatch created", "room", dispatch.Room, "dispatch", dispatch.DispatchID, "agent", dispatch.AgentName)
	writeJSON(w, http.StatusOK, dispatchResponse{
		Success:  true,
		Message:  "Agent dispatch created successfully",
		Dispatch: dispatch,
	})
}

type stateResponse struct {
	Mode            string            `json:"mode"`
	IsModeChanging  bool              `json:"isModeChanging"`
	Quiz            rpc.QuizStateView `json:"quiz"`
	ConnectionState string            `json:"connectionState"`
}

// state is what a display renders: the mode, the quiz snapshot and the session link.
func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	conn := room.StateDisconnected
	if sess := s.activeSession(); sess != nil {
		conn = sess.State()
	}
	writeJSON(w, http.StatusOK, stateResponse{
		Mode:            string(s.deps.Modes.Mode()),
		IsModeChanging:  s.deps.Modes.IsChanging(),
		Quiz:            rpc.NewQuizStateView(s.deps.Quiz.Snapshot()),
		ConnectionState: string(conn),
	})
}

type toolRequest struct {
	Args map[string]string `json:"args"`
}

type toolResponse struct {
	Result string `json:"result"`
}

func (s *Server) agentTool(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tools == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "agent tools are not enabled"})
		return
	}
	var req toolRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	name := mux.Vars(r)["tool"]
	result, err := s.deps.Tools.Run(r.Context(), name, req.Args)
	if errors.Is(err, agenttools.ErrUnknownTool) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toolResponse{Result: result})
}
