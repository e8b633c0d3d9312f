// Package roomtest provides an in-memory room.Room for tests.
package roomtest

import (
	"context"
	"fmt"
	"sync"

	"voice-quiz-control/internal/room"
)

// Room is a scripted session: tests add participants and emit events by hand.
type Room struct {
	mu           sync.Mutex
	name         string
	state        room.ConnectionState
	participants []room.Participant
	listeners    map[int]func(room.Event)
	nextListener int
	handlers     map[string]room.RPCHandler

	// SinkErr, when set, makes NewPlaybackSink fail.
	SinkErr error
	// SubscribeErr, when set, makes Subscribe fail.
	SubscribeErr error
	Sinks        []*Sink
}

func NewRoom(name string) *Room {
	return &Room{
		name:      name,
		state:     room.StateConnected,
		listeners: make(map[int]func(room.Event)),
		handlers:  make(map[string]room.RPCHandler),
	}
}

func (r *Room) Name() string { return r.name }

func (r *Room) State() room.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) SetState(state room.ConnectionState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *Room) RemoteParticipants() []room.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]room.Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

// AddParticipant registers p without emitting an event, as if it joined before listeners existed.
func (r *Room) AddParticipant(p room.Participant) {
	r.mu.Lock()
	r.participants = append(r.participants, p)
	r.mu.Unlock()
}

func (r *Room) Subscribe(listener func(room.Event)) (func(), error) {
	r.mu.Lock()
	if r.SubscribeErr != nil {
		r.mu.Unlock()
		return nil, r.SubscribeErr
	}
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = listener
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}, nil
}

// ListenerCount reports how many listeners are installed.
func (r *Room) ListenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Emit delivers ev to every listener synchronously.
func (r *Room) Emit(ev room.Event) {
	r.mu.Lock()
	listeners := make([]func(room.Event), 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (r *Room) RegisterRPCMethod(method string, handler room.RPCHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[method]; ok {
		return fmt.Errorf("%w: %s", room.ErrMethodAlreadyRegistered, method)
	}
	r.handlers[method] = handler
	return nil
}

// Methods lists registered method names.
func (r *Room) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}

// Call invokes a registered handler the way the transport would.
func (r *Room) Call(ctx context.Context, caller, method string, payload any) (string, error) {
	r.mu.Lock()
	handler, ok := r.handlers[method]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("method %q not registered", method)
	}
	return handler(ctx, room.RPCRequest{
		RequestID:      "req-" + method,
		CallerIdentity: caller,
		Method:         method,
		Payload:        payload,
	})
}

func (r *Room) NewPlaybackSink() (room.PlaybackSink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SinkErr != nil {
		return nil, r.SinkErr
	}
	s := &Sink{}
	r.Sinks = append(r.Sinks, s)
	return s, nil
}

// Participant is a scripted remote participant.
type Participant struct {
	IdentityValue string
	SIDValue      string
	KindValue     room.ParticipantKind
	Attrs         map[string]string
	Publications  []*Publication
}

func (p *Participant) Identity() string           { return p.IdentityValue }
func (p *Participant) SID() string                { return p.SIDValue }
func (p *Participant) Kind() room.ParticipantKind { return p.KindValue }

func (p *Participant) Attribute(key string) (string, bool) {
	v, ok := p.Attrs[key]
	return v, ok
}

func (p *Participant) Attributes() map[string]string {
	out := make(map[string]string, len(p.Attrs))
	for k, v := range p.Attrs {
		out[k] = v
	}
	return out
}

func (p *Participant) AudioTrackPublications() []room.TrackPublication {
	var out []room.TrackPublication
	for _, pub := range p.Publications {
		if pub.KindValue == room.TrackAudio {
			out = append(out, pub)
		}
	}
	return out
}

// Publication records subscription requests made against it.
type Publication struct {
	SID               string
	KindValue         room.TrackKind
	Subscribed        bool
	TrackValue        *Track
	SubscribeRequests int
	SubscribeErr      error
}

func (p *Publication) TrackSID() string     { return p.SID }
func (p *Publication) Kind() room.TrackKind { return p.KindValue }
func (p *Publication) IsSubscribed() bool   { return p.Subscribed }

func (p *Publication) Track() room.Track {
	if p.TrackValue == nil {
		return nil
	}
	return p.TrackValue
}

func (p *Publication) SetSubscribed(subscribed bool) error {
	p.SubscribeRequests++
	return p.SubscribeErr
}

// Track is a scripted media track.
type Track struct {
	SIDValue  string
	KindValue room.TrackKind
}

func (t *Track) SID() string          { return t.SIDValue }
func (t *Track) Kind() room.TrackKind { return t.KindValue }

// Sink records what was attached and played.
type Sink struct {
	mu       sync.Mutex
	Attached []string
	Detached []string
	Plays    int
	PlayErr  error
	Closed   int
}

func (s *Sink) Attach(track room.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attached = append(s.Attached, track.SID())
	return nil
}

func (s *Sink) Detach(track room.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Detached = append(s.Detached, track.SID())
	return nil
}

func (s *Sink) Play(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Plays++
	return s.PlayErr
}

// Snapshot returns copies of the recorded calls.
func (s *Sink) Snapshot() (attached, detached []string, plays, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Attached...), append([]string(nil), s.Detached...), s.Plays, s.Closed
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed++
	return nil
}

// AgentParticipant builds an agent flagged by attribute with one audio publication.
func AgentParticipant(identity string, pub *Publication) *Participant {
	return &Participant{
		IdentityValue: identity,
		SIDValue:      "PA_" + identity,
		KindValue:     room.KindStandard,
		Attrs:         map[string]string{"kind": "agent"},
		Publications:  []*Publication{pub},
	}
}
