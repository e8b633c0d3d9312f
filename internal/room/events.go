package room

// Event is one notification from the session. The concrete types below form a closed set.
type Event interface {
	eventName() string
}

// EventName returns a stable name for logging.
func EventName(ev Event) string {
	if ev == nil {
		return ""
	}
	return ev.eventName()
}

type Connected struct{}

type Reconnecting struct{}

type Reconnected struct{}

type Disconnected struct {
	Reason string
}

type ParticipantConnected struct {
	Participant Participant
}

type ParticipantDisconnected struct {
	Participant Participant
}

type TrackPublished struct {
	Publication TrackPublication
	Participant Participant
}

type TrackSubscribed struct {
	Track       Track
	Publication TrackPublication
	Participant Participant
}

type TrackUnsubscribed struct {
	Track       Track
	Publication TrackPublication
	Participant Participant
}

type TrackMuted struct {
	Publication TrackPublication
	Participant Participant
}

type TrackUnmuted struct {
	Publication TrackPublication
	Participant Participant
}

func (Connected) eventName() string               { return "connected" }
func (Reconnecting) eventName() string            { return "reconnecting" }
func (Reconnected) eventName() string             { return "reconnected" }
func (Disconnected) eventName() string            { return "disconnected" }
func (ParticipantConnected) eventName() string    { return "participant_connected" }
func (ParticipantDisconnected) eventName() string { return "participant_disconnected" }
func (TrackPublished) eventName() string          { return "track_published" }
func (TrackSubscribed) eventName() string         { return "track_subscribed" }
func (TrackUnsubscribed) eventName() string       { return "track_unsubscribed" }
func (TrackMuted) eventName() string              { return "track_muted" }
func (TrackUnmuted) eventName() string            { return "track_unmuted" }
