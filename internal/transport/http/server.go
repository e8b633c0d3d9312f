package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"voice-quiz-control/internal/agenttools"
	"voice-quiz-control/internal/app"
	"voice-quiz-control/internal/controlplane"
	"voice-quiz-control/internal/livekit"
	"voice-quiz-control/internal/rpc"
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Modes      *app.ModeMachine
	Quiz       *app.QuizSession
	Dispatcher *rpc.Dispatcher
	Tools      *agenttools.Toolkit
	Tokens     *livekit.TokenIssuer
	Agents     *livekit.DispatchClient
	Latch      controlplane.DispatchLatch
	Logger     *slog.Logger
}

// Server exposes the control plane over HTTP and hosts the single gateway bridge.
type Server struct {
	deps     Deps
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	active *controlplane.Session
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
		deps.Logger = logger
	}
	return &Server{
		deps: deps,
		log:  logger.With("component", "http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/token", s.token).Methods(http.MethodGet)
	api.HandleFunc("/dispatch-agent", s.dispatchAgent).Methods(http.MethodPost)
	api.HandleFunc("/state", s.state).Methods(http.MethodGet)
	api.HandleFunc("/agent-tools/{tool}", s.agentTool).Methods(http.MethodPost)
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) activeSession() *controlplane.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
