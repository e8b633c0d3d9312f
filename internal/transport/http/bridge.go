package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voice-quiz-control/internal/room"
)

// Frame types exchanged with the media gateway.
const (
	frameParticipantConnected    = "participant_connected"
	frameParticipantDisconnected = "participant_disconnected"
	frameTrackPublished          = "track_published"
	frameTrackSubscribed         = "track_subscribed"
	frameTrackUnsubscribed       = "track_unsubscribed"
	frameTrackMuted              = "track_muted"
	frameTrackUnmuted            = "track_unmuted"
	frameConnectionState         = "connection_state"
	frameRPCRequest              = "rpc_request"

	frameRPCResponse   = "rpc_response"
	frameSetSubscribed = "set_subscribed"
	framePlayback      = "playback"
	frameError         = "error"
)

type trackWire struct {
	SID        string `json:"sid"`
	Kind       string `json:"kind"`
	Subscribed bool   `json:"subscribed,omitempty"`
	Muted      bool   `json:"muted,omitempty"`
}

type participantWire struct {
	Identity   string            `json:"identity"`
	SID        string            `json:"sid,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Tracks     []trackWire       `json:"tracks,omitempty"`
}

type inboundFrame struct {
	Type        string           `json:"type"`
	Participant *participantWire `json:"participant,omitempty"`
	Track       *trackWire       `json:"track,omitempty"`
	State       string           `json:"state,omitempty"`
	Reason      string           `json:"reason,omitempty"`

	ID                string          `json:"id,omitempty"`
	Method            string          `json:"method,omitempty"`
	CallerIdentity    string          `json:"callerIdentity,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	ResponseTimeoutMs int             `json:"responseTimeoutMs,omitempty"`
}

type outboundFrame struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"`
	Payload    string `json:"payload,omitempty"`
	Error      string `json:"error,omitempty"`
	Identity   string `json:"identity,omitempty"`
	TrackSID   string `json:"trackSid,omitempty"`
	Subscribed *bool  `json:"subscribed,omitempty"`
	Action     string `json:"action,omitempty"`
}

// Bridge is a room.Room fed by a media gateway over one WebSocket. The gateway holds
// the real-time session and relays its events and RPC invocations as JSON frames;
// the bridge answers with RPC responses, subscription requests and playback commands.
type Bridge struct {
	name string
	id   string
	log  *slog.Logger

	send chan outboundFrame
	done chan struct{}
	once sync.Once

	mu           sync.Mutex
	state        room.ConnectionState
	participants map[string]*remoteParticipant
	listeners    map[int]func(room.Event)
	nextListener int
	handlers     map[string]room.RPCHandler
}

func NewBridge(name string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Bridge{
		name:         name,
		id:           id,
		log:          logger.With("component", "bridge", "room", name, "bridge", id),
		send:         make(chan outboundFrame, 64),
		done:         make(chan struct{}),
		state:        room.StateConnecting,
		participants: make(map[string]*remoteParticipant),
		listeners:    make(map[int]func(room.Event)),
		handlers:     make(map[string]room.RPCHandler),
	}
}

func (b *Bridge) Name() string { return b.name }

// ID is the random id of this bridge connection.
func (b *Bridge) ID() string { return b.id }

func (b *Bridge) State() room.ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) RemoteParticipants() []room.Participant {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.participants))
	for id := range b.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]room.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.participants[id])
	}
	return out
}

func (b *Bridge) Subscribe(listener func(room.Event)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isClosed() {
		return nil, room.ErrSessionClosed
	}
	id := b.nextListener
	b.nextListener++
	b.listeners[id] = listener
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}, nil
}

func (b *Bridge) RegisterRPCMethod(method string, handler room.RPCHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[method]; ok {
		return fmt.Errorf("%w: %s", room.ErrMethodAlreadyRegistered, method)
	}
	b.handlers[method] = handler
	return nil
}

func (b *Bridge) NewPlaybackSink() (room.PlaybackSink, error) {
	if b.isClosed() {
		return nil, room.ErrSessionClosed
	}
	return &bridgeSink{bridge: b}, nil
}

// Close ends the bridge; pending and later sends fail with room.ErrSessionClosed.
func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		b.state = room.StateDisconnected
		b.mu.Unlock()
	})
}

func (b *Bridge) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *Bridge) enqueue(f outboundFrame) error {
	select {
	case <-b.done:
		return room.ErrSessionClosed
	default:
	}
	select {
	case b.send <- f:
		return nil
	case <-b.done:
		return room.ErrSessionClosed
	}
}

// writeLoop owns all writes to conn.
func (b *Bridge) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case f := <-b.send:
			if err := conn.WriteJSON(f); err != nil {
				b.log.Warn("ws write failed", "error", err)
				b.Close()
				return
			}
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) emit(ev room.Event) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(room.Event), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, b.listeners[id])
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// handleFrame applies one inbound frame. Frames are handled one at a time on the
// connection's read goroutine, so RPC calls never overlap.
func (b *Bridge) handleFrame(ctx context.Context, f inboundFrame) {
	switch f.Type {
	case frameConnectionState:
		b.connectionState(f)
	case frameParticipantConnected:
		if f.Participant == nil || f.Participant.Identity == "" {
			b.reject(f, "participant is required")
			return
		}
		p := b.upsertParticipant(*f.Participant)
		b.emit(room.ParticipantConnected{Participant: p})
	case frameParticipantDisconnected:
		if f.Participant == nil {
			b.reject(f, "participant is required")
			return
		}
		b.mu.Lock()
		p, ok := b.participants[f.Participant.Identity]
		delete(b.participants, f.Participant.Identity)
		b.mu.Unlock()
		if ok {
			b.emit(room.ParticipantDisconnected{Participant: p})
		}
	case frameTrackPublished, frameTrackSubscribed, frameTrackUnsubscribed, frameTrackMuted, frameTrackUnmuted:
		b.trackFrame(f)
	case frameRPCRequest:
		b.rpcRequest(ctx, f)
	default:
		b.reject(f, "unsupported frame type")
	}
}

func (b *Bridge) connectionState(f inboundFrame) {
	next := room.ConnectionState(f.State)
	b.mu.Lock()
	prev := b.state
	switch next {
	case room.StateConnecting, room.StateConnected, room.StateReconnecting, room.StateDisconnected:
		b.state = next
	default:
		b.mu.Unlock()
		b.reject(f, "unknown connection state")
		return
	}
	b.mu.Unlock()

	switch next {
	case room.StateConnected:
		if prev == room.StateReconnecting {
			b.emit(room.Reconnected{})
		} else {
			b.emit(room.Connected{})
		}
	case room.StateReconnecting:
		b.emit(room.Reconnecting{})
	case room.StateDisconnected:
		b.emit(room.Disconnected{Reason: f.Reason})
	}
}

func (b *Bridge) upsertParticipant(w participantWire) *remoteParticipant {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.participants[w.Identity]
	if !ok {
		p = &remoteParticipant{bridge: b, identity: w.Identity, publications: make(map[string]*remotePublication)}
		b.participants[w.Identity] = p
	}
	if w.SID != "" {
		p.sid = w.SID
	}
	if w.Kind != "" {
		p.kind = room.ParticipantKind(w.Kind)
	} else if p.kind == "" {
		p.kind = room.KindStandard
	}
	if w.Attributes != nil {
		p.attrs = make(map[string]string, len(w.Attributes))
		for k, v := range w.Attributes {
			p.attrs[k] = v
		}
	}
	for _, t := range w.Tracks {
		p.upsertPublication(t, true)
	}
	return p
}

func (b *Bridge) trackFrame(f inboundFrame) {
	if f.Participant == nil || f.Track == nil || f.Track.SID == "" {
		b.reject(f, "participant and track are required")
		return
	}
	p := b.upsertParticipant(participantWire{
		Identity:   f.Participant.Identity,
		SID:        f.Participant.SID,
		Kind:       f.Participant.Kind,
		Attributes: f.Participant.Attributes,
	})

	b.mu.Lock()
	pub := p.upsertPublication(*f.Track, f.Type == frameTrackPublished)
	switch f.Type {
	case frameTrackSubscribed:
		pub.subscribed = true
	case frameTrackUnsubscribed:
		pub.subscribed = false
	case frameTrackMuted:
		pub.muted = true
	case frameTrackUnmuted:
		pub.muted = false
	}
	track := room.Track(&remoteTrack{sid: pub.sid, kind: pub.kind})
	b.mu.Unlock()

	switch f.Type {
	case frameTrackPublished:
		b.emit(room.TrackPublished{Publication: pub, Participant: p})
	case frameTrackSubscribed:
		b.emit(room.TrackSubscribed{Track: track, Publication: pub, Participant: p})
	case frameTrackUnsubscribed:
		b.emit(room.TrackUnsubscribed{Track: track, Publication: pub, Participant: p})
	case frameTrackMuted:
		b.emit(room.TrackMuted{Publication: pub, Participant: p})
	case frameTrackUnmuted:
		b.emit(room.TrackUnmuted{Publication: pub, Participant: p})
	}
}

func (b *Bridge) rpcRequest(ctx context.Context, f inboundFrame) {
	if f.ID == "" {
		b.reject(f, "rpc request id is required")
		return
	}
	b.mu.Lock()
	handler, ok := b.handlers[f.Method]
	b.mu.Unlock()
	if !ok {
		_ = b.enqueue(outboundFrame{Type: frameRPCResponse, ID: f.ID, Error: "method not supported: " + f.Method})
		return
	}

	req := room.RPCRequest{
		RequestID:       f.ID,
		CallerIdentity:  f.CallerIdentity,
		Method:          f.Method,
		Payload:         rpcPayload(f.Payload),
		ResponseTimeout: time.Duration(f.ResponseTimeoutMs) * time.Millisecond,
	}
	if req.ResponseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.ResponseTimeout)
		defer cancel()
	}

	out, err := handler(ctx, req)
	resp := outboundFrame{Type: frameRPCResponse, ID: f.ID, Payload: out}
	if err != nil {
		resp = outboundFrame{Type: frameRPCResponse, ID: f.ID, Error: err.Error()}
	}
	if err := b.enqueue(resp); err != nil {
		b.log.Warn("rpc response dropped", "id", f.ID, "method", f.Method, "error", err)
	}
}

// rpcPayload passes a JSON string through as text and anything else as raw JSON, so
// the handler reports a payload it cannot use in its own response.
func rpcPayload(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return json.RawMessage(trimmed)
}

func (b *Bridge) reject(f inboundFrame, msg string) {
	b.log.Debug("frame rejected", "type", f.Type, "reason", msg)
	_ = b.enqueue(outboundFrame{Type: frameError, ID: f.ID, Error: fmt.Sprintf("%s: %s", f.Type, msg)})
}

type remoteParticipant struct {
	bridge *Bridge

	// guarded by bridge.mu
	identity     string
	sid          string
	kind         room.ParticipantKind
	attrs        map[string]string
	publications map[string]*remotePublication
	order        []string
}

func (p *remoteParticipant) Identity() string { return p.identity }

func (p *remoteParticipant) SID() string {
	p.bridge.mu.Lock()
	defer p.bridge.mu.Unlock()
	return p.sid
}

func (p *remoteParticipant) Kind() room.ParticipantKind {
	p.bridge.mu.Lock()
	defer p.bridge.mu.Unlock()
	return p.kind
}

func (p *remoteParticipant) Attribute(key string) (string, bool) {
	p.bridge.mu.Lock()
	defer p.bridge.mu.Unlock()
	v, ok := p.attrs[key]
	return v, ok
}

func (p *remoteParticipant) Attributes() map[string]string {
	p.bridge.mu.Lock()
	defer p.bridge.mu.Unlock()
	out := make(map[string]string, len(p.attrs))
	for k, v := range p.attrs {
		out[k] = v
	}
	return out
}

func (p *remoteParticipant) AudioTrackPublications() []room.TrackPublication {
	p.bridge.mu.Lock()
	defer p.bridge.mu.Unlock()
	var out []room.TrackPublication
	for _, sid := range p.order {
		if pub := p.publications[sid]; pub.kind == room.TrackAudio {
			out = append(out, pub)
		}
	}
	return out
}

// upsertPublication requires bridge.mu. A full record also carries the subscription
// and mute flags; partial records from track frames only name the track.
func (p *remoteParticipant) upsertPublication(t trackWire, full bool) *remotePublication {
	pub, ok := p.publications[t.SID]
	if !ok {
		pub = &remotePublication{participant: p, sid: t.SID}
		p.publications[t.SID] = pub
		p.order = append(p.order, t.SID)
	}
	if t.Kind != "" {
		pub.kind = room.TrackKind(t.Kind)
	}
	if full {
		pub.subscribed = t.Subscribed
		pub.muted = t.Muted
	}
	return pub
}

type remotePublication struct {
	participant *remoteParticipant

	// guarded by bridge.mu
	sid        string
	kind       room.TrackKind
	subscribed bool
	muted      bool
}

func (p *remotePublication) TrackSID() string { return p.sid }

func (p *remotePublication) Kind() room.TrackKind {
	p.participant.bridge.mu.Lock()
	defer p.participant.bridge.mu.Unlock()
	return p.kind
}

func (p *remotePublication) IsSubscribed() bool {
	p.participant.bridge.mu.Lock()
	defer p.participant.bridge.mu.Unlock()
	return p.subscribed
}

func (p *remotePublication) Track() room.Track {
	p.participant.bridge.mu.Lock()
	defer p.participant.bridge.mu.Unlock()
	if !p.subscribed {
		return nil
	}
	return &remoteTrack{sid: p.sid, kind: p.kind}
}

// SetSubscribed asks the gateway to change the subscription; the gateway confirms
// with a track_subscribed or track_unsubscribed frame.
func (p *remotePublication) SetSubscribed(subscribed bool) error {
	return p.participant.bridge.enqueue(outboundFrame{
		Type:       frameSetSubscribed,
		Identity:   p.participant.identity,
		TrackSID:   p.sid,
		Subscribed: &subscribed,
	})
}

type remoteTrack struct {
	sid  string
	kind room.TrackKind
}

func (t *remoteTrack) SID() string          { return t.sid }
func (t *remoteTrack) Kind() room.TrackKind { return t.kind }

// bridgeSink forwards playback commands to the gateway, which owns the audio element.
type bridgeSink struct {
	bridge *Bridge
}

func (s *bridgeSink) Attach(track room.Track) error {
	return s.bridge.enqueue(outboundFrame{Type: framePlayback, Action: "attach", TrackSID: track.SID()})
}

func (s *bridgeSink) Detach(track room.Track) error {
	return s.bridge.enqueue(outboundFrame{Type: framePlayback, Action: "detach", TrackSID: track.SID()})
}

func (s *bridgeSink) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.bridge.enqueue(outboundFrame{Type: framePlayback, Action: "play"})
}

func (s *bridgeSink) Close() error {
	err := s.bridge.enqueue(outboundFrame{Type: framePlayback, Action: "release"})
	if errors.Is(err, room.ErrSessionClosed) {
		// nothing left to release on the far side
		return nil
	}
	return err
}
