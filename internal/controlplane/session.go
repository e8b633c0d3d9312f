// Package controlplane binds the RPC dispatcher, agent audio discovery and the
// agent-dispatch request to one room session.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-quiz-control/internal/presence"
	"voice-quiz-control/internal/room"
	"voice-quiz-control/internal/rpc"
)

const defaultDispatchTimeout = 10 * time.Second

// DispatchLatch guards the agent dispatch so it happens once per session start.
type DispatchLatch interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// AgentDispatcher asks the media server to send the voice agent into a room.
type AgentDispatcher interface {
	DispatchAgent(ctx context.Context, roomName string) error
}

// Options tune a Session. Zero values are usable.
type Options struct {
	// SessionID identifies the transport session in dispatch latch keys. Empty means a
	// fresh random id.
	SessionID       string
	DispatchTimeout time.Duration
	Logger          *slog.Logger
}

// Session wires the control plane to a room for the lifetime of one transport session.
type Session struct {
	room       room.Room
	dispatcher *rpc.Dispatcher
	latch      DispatchLatch
	agents     AgentDispatcher
	discovery  *presence.Discovery
	log        *slog.Logger

	id              string
	dispatchTimeout time.Duration

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	state       room.ConnectionState
	live        bool
	epoch       int
	started     bool
	closed      bool
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewSession prepares a session. agents may be nil, in which case the agent is
// expected to join on its own.
func NewSession(r room.Room, dispatcher *rpc.Dispatcher, latch DispatchLatch, agents AgentDispatcher, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	timeout := opts.DispatchTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Session{
		room:            r,
		dispatcher:      dispatcher,
		latch:           latch,
		agents:          agents,
		discovery:       presence.NewDiscovery(r, logger),
		log:             logger.With("component", "controlplane", "room", r.Name(), "session", id),
		id:              id,
		dispatchTimeout: timeout,
		state:           room.StateConnecting,
	}
}

// Start registers the RPC operations, arms agent audio discovery and follows the
// connection lifecycle. When the room is already connected the agent is dispatched
// right away.
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if err := s.dispatcher.Register(s.room); err != nil {
		return fmt.Errorf("register rpc methods: %w", err)
	}

	if err := s.discovery.Arm(s.ctx); err != nil {
		// RPC control still works without local audio
		s.log.Warn("agent audio unavailable", "error", err)
	}

	unsubscribe, err := s.room.Subscribe(s.HandleEvent)
	if err != nil {
		return fmt.Errorf("subscribe to connection events: %w", err)
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	if s.room.State() == room.StateConnected {
		s.HandleEvent(room.Connected{})
	}
	return nil
}

// HandleEvent tracks the connection state. A Connected event that follows a
// disconnect (or the first one) starts a new session epoch and requests the agent;
// Reconnected resumes the current epoch.
func (s *Session) HandleEvent(ev room.Event) {
	switch e := ev.(type) {
	case room.Connected:
		s.mu.Lock()
		s.state = room.StateConnected
		if s.live || s.closed {
			s.mu.Unlock()
			return
		}
		s.live = true
		s.epoch++
		key := s.latchKey(s.epoch)
		s.mu.Unlock()
		s.log.Info("room connected", "key", key)
		s.dispatch(key)
	case room.Reconnecting:
		s.setState(room.StateReconnecting)
		s.log.Info("room reconnecting")
	case room.Reconnected:
		s.setState(room.StateConnected)
		s.log.Info("room reconnected")
	case room.Disconnected:
		s.mu.Lock()
		s.state = room.StateDisconnected
		s.live = false
		s.mu.Unlock()
		s.log.Info("room disconnected", "reason", e.Reason)
	}
}

func (s *Session) setState(state room.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) latchKey(epoch int) string {
	return fmt.Sprintf("%s/%s/%d", s.room.Name(), s.id, epoch)
}

func (s *Session) dispatch(key string) {
	if s.agents == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
		defer cancel()

		if s.latch != nil {
			acquired, err := s.latch.TryAcquire(ctx, key)
			if err != nil {
				s.log.Error("agent dispatch latch", "key", key, "error", err)
				return
			}
			if !acquired {
				s.log.Debug("agent dispatch already requested", "key", key)
				return
			}
		}
		if err := s.agents.DispatchAgent(ctx, s.room.Name()); err != nil {
			s.log.Error("agent dispatch failed", "key", key, "error", err)
			// reopen the latch so another attempt for this session start can retry
			if s.latch != nil {
				if rerr := s.latch.Release(context.WithoutCancel(ctx), key); rerr != nil {
					s.log.Warn("release dispatch latch", "key", key, "error", rerr)
				}
			}
			return
		}
		s.log.Info("agent dispatch requested", "key", key)
	}()
}

// State returns the last observed connection state.
func (s *Session) State() room.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Epoch counts session starts seen so far.
func (s *Session) Epoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Discovery exposes the agent audio discovery of this session.
func (s *Session) Discovery() *presence.Discovery { return s.discovery }

// Close stops listening, waits for an in-flight dispatch and releases the playback sink.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = room.StateDisconnected
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	cancel := s.cancel
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if err := s.discovery.Close(); err != nil {
		return fmt.Errorf("close discovery: %w", err)
	}
	s.log.Info("session closed")
	return nil
}
