// Package presence finds the voice agent among the session's participants and routes
// its audio to a local playback sink.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"voice-quiz-control/internal/room"
)

// AgentKindAttribute is the participant attribute that flags the voice agent.
const AgentKindAttribute = "kind"

// IsAgent reports whether p is the voice agent: either it carries kind=agent as an
// attribute or the transport classifies it natively as an agent.
func IsAgent(p room.Participant) bool {
	if p == nil {
		return false
	}
	if kind, ok := p.Attribute(AgentKindAttribute); ok && kind == "agent" {
		return true
	}
	return p.Kind() == room.KindAgent
}

// Discovery subscribes to agent audio and plays it through one playback sink, created
// lazily on Arm and released on Close.
type Discovery struct {
	room room.Room
	log  *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	armed       bool
	closed      bool
	sink        room.PlaybackSink
	unsubscribe func()
	attached    map[string]room.Track
}

func NewDiscovery(r room.Room, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		room:     r,
		log:      logger.With("component", "presence", "room", r.Name()),
		attached: make(map[string]room.Track),
	}
}

// Arm creates the playback sink, starts listening for participant and track events and
// then sweeps participants already in the session. Arming twice is a no-op.
func (d *Discovery) Arm(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return room.ErrSessionClosed
	}
	if d.armed {
		d.mu.Unlock()
		return nil
	}

	sink, err := d.room.NewPlaybackSink()
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("create playback sink: %w", err)
	}
	unsubscribe, err := d.room.Subscribe(d.HandleEvent)
	if err != nil {
		if cerr := sink.Close(); cerr != nil {
			d.log.Warn("release playback sink", "error", cerr)
		}
		d.mu.Unlock()
		return fmt.Errorf("subscribe to room events: %w", err)
	}
	d.ctx = ctx
	d.sink = sink
	d.unsubscribe = unsubscribe
	d.armed = true
	d.mu.Unlock()

	participants := d.room.RemoteParticipants()
	d.log.Debug("sweeping existing participants", "count", len(participants))
	for _, p := range participants {
		d.participantConnected(p)
	}
	return nil
}

// HandleEvent reacts to one room event. Events about non-agents or non-audio tracks
// are ignored.
func (d *Discovery) HandleEvent(ev room.Event) {
	switch e := ev.(type) {
	case room.ParticipantConnected:
		d.participantConnected(e.Participant)
	case room.TrackPublished:
		if !IsAgent(e.Participant) || e.Publication.Kind() != room.TrackAudio || e.Publication.IsSubscribed() {
			return
		}
		d.requestSubscription(e.Participant, e.Publication)
	case room.TrackSubscribed:
		if !IsAgent(e.Participant) || e.Track == nil || e.Track.Kind() != room.TrackAudio {
			return
		}
		d.attach(e.Participant, e.Track)
	case room.TrackUnsubscribed:
		if e.Track == nil || !IsAgent(e.Participant) {
			return
		}
		d.forget(e.Participant, e.Track)
	case room.ParticipantDisconnected:
		if IsAgent(e.Participant) {
			d.log.Info("agent left", "identity", e.Participant.Identity())
		}
	}
}

func (d *Discovery) participantConnected(p room.Participant) {
	if !IsAgent(p) {
		return
	}
	d.log.Info("agent present", "identity", p.Identity())
	for _, pub := range p.AudioTrackPublications() {
		if track := pub.Track(); track != nil {
			d.attach(p, track)
			continue
		}
		if !pub.IsSubscribed() {
			d.requestSubscription(p, pub)
		}
	}
}

func (d *Discovery) requestSubscription(p room.Participant, pub room.TrackPublication) {
	if err := pub.SetSubscribed(true); err != nil {
		d.log.Warn("subscribe to agent audio", "identity", p.Identity(), "track", pub.TrackSID(), "error", err)
		return
	}
	d.log.Debug("requested agent audio", "identity", p.Identity(), "track", pub.TrackSID())
}

func (d *Discovery) attach(p room.Participant, track room.Track) {
	d.mu.Lock()
	if !d.armed || d.closed {
		d.mu.Unlock()
		return
	}
	if _, ok := d.attached[track.SID()]; ok {
		d.mu.Unlock()
		return
	}
	sink, ctx := d.sink, d.ctx
	if err := sink.Attach(track); err != nil {
		d.mu.Unlock()
		d.log.Warn("attach agent audio", "identity", p.Identity(), "track", track.SID(), "error", err)
		return
	}
	d.attached[track.SID()] = track
	d.mu.Unlock()

	d.log.Info("agent audio attached", "identity", p.Identity(), "track", track.SID())
	if err := sink.Play(ctx); err != nil {
		// autoplay can be refused; the track stays attached
		d.log.Warn("start agent audio playback", "identity", p.Identity(), "track", track.SID(), "error", err)
	}
}

func (d *Discovery) forget(p room.Participant, track room.Track) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.attached[track.SID()]; !ok {
		return
	}
	delete(d.attached, track.SID())
	if err := d.sink.Detach(track); err != nil {
		d.log.Warn("detach agent audio", "identity", p.Identity(), "track", track.SID(), "error", err)
	}
	d.log.Info("agent audio unsubscribed", "identity", p.Identity(), "track", track.SID())
}

// Attached returns the sids of tracks currently routed to the sink.
func (d *Discovery) Attached() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.attached))
	for sid := range d.attached {
		out = append(out, sid)
	}
	return out
}

// Close stops listening and releases the sink. It is safe to call more than once and
// before Arm.
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	d.attached = make(map[string]room.Track)
	if d.sink == nil {
		return nil
	}
	sink := d.sink
	d.sink = nil
	if err := sink.Close(); err != nil {
		return fmt.Errorf("release playback sink: %w", err)
	}
	return nil
}
