package controlplane

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice-quiz-control/internal/app"
	"voice-quiz-control/internal/infra/memory"
	"voice-quiz-control/internal/room"
	"voice-quiz-control/internal/room/roomtest"
	"voice-quiz-control/internal/rpc"
)

type recordingAgents struct {
	mu    sync.Mutex
	rooms []string
	err   error
}

func (a *recordingAgents) DispatchAgent(_ context.Context, roomName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rooms = append(a.rooms, roomName)
	return a.err
}

func (a *recordingAgents) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rooms)
}

func newDispatcher() *rpc.Dispatcher {
	quiz := app.NewQuizSession(memory.NewCatalogRepository(memory.NewStaticCatalogLoader(memory.DefaultCatalog()), 0))
	return rpc.NewDispatcher(app.NewModeMachine(0), quiz, nil)
}

func waitForCount(t *testing.T, agents *recordingAgents, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if agents.count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d dispatches, got %d", want, agents.count())
}

// settle waits long enough for a dispatch goroutine that should not exist to show up.
func settle() { time.Sleep(30 * time.Millisecond) }

func TestStartWiresRoomAndDispatchesOnce(t *testing.T) {
	r := roomtest.NewRoom("quiz-room")
	agents := &recordingAgents{}
	s := NewSession(r, newDispatcher(), memory.NewDispatchLatch(), agents, Options{SessionID: "s1"})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	if got := len(r.Methods()); got != 6 {
		t.Fatalf("expected 6 rpc methods, got %d", got)
	}
	if len(r.Sinks) != 1 {
		t.Fatalf("expected discovery to create the playback sink")
	}
	waitForCount(t, agents, 1)
	if agents.rooms[0] != "quiz-room" {
		t.Fatalf("unexpected room %q", agents.rooms[0])
	}
	if s.State() != room.StateConnected || s.Epoch() != 1 {
		t.Fatalf("unexpected state %s epoch %d", s.State(), s.Epoch())
	}

	r.Emit(room.Connected{})
	settle()
	if agents.count() != 1 {
		t.Fatalf("repeated connected event must not dispatch again")
	}
}

func TestReconnectDoesNotRedispatch(t *testing.T) {
	r := roomtest.NewRoom("quiz-room")
	agents := &recordingAgents{}
	s := NewSession(r, newDispatcher(), memory.NewDispatchLatch(), agents, Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()
	waitForCount(t, agents, 1)

	r.Emit(room.Reconnecting{})
	if s.State() != room.StateReconnecting {
		t.Fatalf("expected reconnecting, got %s", s.State())
	}
	r.Emit(room.Reconnected{})
	r.Emit(room.Connected{})
	settle()
	if agents.count() != 1 || s.State() != room.StateConnected {
		t.Fatalf("expected no redispatch after reconnect, got %d (state %s)", agents.count(), s.State())
	}
}

func TestNewSessionStartDispatchesAgain(t *testing.T) {
	r := roomtest.NewRoom("quiz-room")
	agents := &recordingAgents{}
	s := NewSession(r, newDispatcher(), memory.NewDispatchLatch(), agents, Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()
	waitForCount(t, agents, 1)

	r.Emit(room.Disconnected{Reason: "network"})
	if s.State() != room.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", s.State())
	}
	r.Emit(room.Connected{})
	waitForCount(t, agents, 2)
	if s.Epoch() != 2 {
		t.Fatalf("expected epoch 2, got %d", s.Epoch())
	}
}

func TestWaitsForConnectionBeforeDispatch(t *testing.T) {
	r := roomtest.NewRoom("quiz-room")
	r.SetState(room.StateConnecting)
	agents := &recordingAgents{}
	s := NewSession(r, newDispatcher(), memory.NewDispatchLatch(), agents, Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	settle()
	if agents.count() != 0 || s.State() != room.StateConnecting {
		t.Fatalf("expected no dispatch before connecting")
	}
	r.Emit(room.Connected{})
	waitForCount(t, agents, 1)
}

func TestSharedLatchDispatchesOncePerSessionKey(t *testing.T) {
	latch := memory.NewDispatchLatch()
	agents := &recordingAgents{}

	for i := 0; i < 2; i++ {
		r := roomtest.NewRoom("quiz-room")
		s := NewSession(r, newDispatcher(), latch, agents, Options{SessionID: "gateway-1"})
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		settle()
		s.Close()
	}
	if agents.count() != 1 {
		t.Fatalf("expected one dispatch for the shared session key, got %d", agents.count())
	}
}

func TestDispatchFailureIsNotFatal(t *testing.T) {
	r := roomtest.NewRoom("quiz-room")
	agents := &recordingAgents{err: errors.New("upstream 503")}
	s := NewSession(r, newDispatcher(), nil, agents, Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()
	waitForCount(t, agents, 1)

	out, err := r.Call(context.Background(), "agent", rpc.MethodGetMode, "")
	if err != nil || out == "" {
		t.Fatalf("expected rpc to keep working, got %q, %v", out, err)
	}
}

func TestStartFailureCleansUp(t *testing.T) {
	r := roomtest.NewRoom("quiz-room")
	if err := r.RegisterRPCMethod(rpc.MethodGetMode, func(context.Context, room.RPCRequest) (string, error) { return "", nil }); err != nil {
		t.Fatalf("pre-register: %v", err)
	}
	s := NewSession(r, newDispatcher(), nil, nil, Options{})

	err := s.Start(context.Background())
	if !errors.Is(err, room.ErrMethodAlreadyRegistered) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
	if r.ListenerCount() != 0 {
		t.Fatalf("expected no listeners left, got %d", r.ListenerCount())
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected closed session to refuse a restart")
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	r := roomtest.NewRoom("quiz-room")
	s := NewSession(r, newDispatcher(), nil, nil, Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.ListenerCount() != 2 {
		t.Fatalf("expected discovery and session listeners, got %d", r.ListenerCount())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if r.ListenerCount() != 0 {
		t.Fatalf("expected listeners removed, got %d", r.ListenerCount())
	}
	if _, _, _, closed := r.Sinks[0].Snapshot(); closed != 1 {
		t.Fatalf("expected sink released once, got %d", closed)
	}
	if s.State() != room.StateDisconnected {
		t.Fatalf("expected disconnected after close")
	}
}

func TestFailedDispatchReopensLatch(t *testing.T) {
	r := roomtest.NewRoom("quiz-room")
	latch := memory.NewDispatchLatch()
	agents := &recordingAgents{err: errors.New("upstream 503")}
	s := NewSession(r, newDispatcher(), latch, agents, Options{SessionID: "s2"})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForCount(t, agents, 1)
	s.Close()

	acquired, err := latch.TryAcquire(context.Background(), "quiz-room/s2/1")
	if err != nil || !acquired {
		t.Fatalf("expected latch released after failed dispatch, acquired=%v err=%v", acquired, err)
	}
}
