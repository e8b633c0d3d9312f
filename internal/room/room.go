// Package room declares the boundary to the real-time session collaborator: the
// participant registry, track publications, the event stream and the RPC primitive.
// Concrete sessions (the WebSocket gateway bridge, test fakes) implement these interfaces.
package room

import (
	"context"
	"errors"
	"time"
)

// ParticipantKind is the transport's native participant classification.
type ParticipantKind string

const (
	KindStandard ParticipantKind = "standard"
	KindAgent    ParticipantKind = "agent"
	KindIngress  ParticipantKind = "ingress"
	KindEgress   ParticipantKind = "egress"
	KindSIP      ParticipantKind = "sip"
)

// TrackKind is the media type of a track.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// ConnectionState is the session's connection lifecycle stage.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateDisconnected ConnectionState = "disconnected"
)

// Participant is a remote member of the session.
type Participant interface {
	Identity() string
	SID() string
	Kind() ParticipantKind
	// Attribute returns a participant-scoped attribute such as "kind".
	Attribute(key string) (string, bool)
	Attributes() map[string]string
	AudioTrackPublications() []TrackPublication
}

// TrackPublication is a track a participant has published, subscribed or not.
type TrackPublication interface {
	TrackSID() string
	Kind() TrackKind
	IsSubscribed() bool
	// Track is nil until the publication is subscribed.
	Track() Track
	SetSubscribed(subscribed bool) error
}

// Track is subscribed media that can be routed to a playback sink.
type Track interface {
	SID() string
	Kind() TrackKind
}

// PlaybackSink plays attached remote audio locally.
type PlaybackSink interface {
	Attach(track Track) error
	Detach(track Track) error
	// Play starts playback; it may be rejected by autoplay policies on the far side.
	Play(ctx context.Context) error
	Close() error
}

// RPCRequest is an inbound remote call. Payload is either text (string, []byte,
// json.RawMessage) or an already-parsed value.
type RPCRequest struct {
	RequestID       string
	CallerIdentity  string
	Method          string
	Payload         any
	ResponseTimeout time.Duration
}

// RPCHandler answers a remote call with response text.
type RPCHandler func(ctx context.Context, req RPCRequest) (string, error)

// RPCRegistrar binds handlers to method names.
type RPCRegistrar interface {
	RegisterRPCMethod(method string, handler RPCHandler) error
}

var (
	// ErrMethodAlreadyRegistered is returned when a method name is bound twice in one session.
	ErrMethodAlreadyRegistered = errors.New("rpc method already registered")
	// ErrSessionClosed is returned by operations on a session that has ended.
	ErrSessionClosed = errors.New("room session closed")
)

// Room is the session collaborator as seen by the control plane.
type Room interface {
	RPCRegistrar

	Name() string
	State() ConnectionState
	RemoteParticipants() []Participant
	// Subscribe installs a listener; events are delivered one at a time on the
	// session's delivery goroutine. The returned func removes the listener.
	Subscribe(listener func(Event)) (unsubscribe func(), err error)
	NewPlaybackSink() (PlaybackSink, error)
}
