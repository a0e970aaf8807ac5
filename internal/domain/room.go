package domain

// TrackKind is the media kind of a remote track.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Participant identifies a remote (or local) room member.
type Participant struct {
	Identity string
	Metadata string
}

// Segment is a fragment of speech-to-text output.
type Segment struct {
	ID    string
	Text  string
	Final bool
}

// AudioSink is a playback resource attached to a remote audio track.
type AudioSink interface {
	Close() error
}

// Track is a subscribed remote track.
type Track interface {
	SID() string
	Kind() TrackKind
	// Attach starts playback of the track and returns the sink that owns it.
	Attach() (AudioSink, error)
}

// Signal is an input produced by a room transport.
type Signal interface {
	roomSignal()
}

// RoomConnected reports that the join completed.
type RoomConnected struct{}

// RoomDisconnected reports that the room connection ended.
type RoomDisconnected struct{}

// ParticipantJoined reports a remote participant entering the room.
type ParticipantJoined struct{ Participant Participant }

// ParticipantLeft reports a remote participant leaving the room.
type ParticipantLeft struct{ Participant Participant }

// TrackSubscribed reports a remote track that is now received.
type TrackSubscribed struct {
	Track       Track
	Participant Participant
}

// TrackUnsubscribed reports a remote track that is no longer received.
type TrackUnsubscribed struct {
	Track       Track
	Participant Participant
}

// TranscriptionReceived carries segments attributed to a participant.
type TranscriptionReceived struct {
	Segments    []Segment
	Participant Participant
}

func (RoomConnected) roomSignal()         {}
func (RoomDisconnected) roomSignal()      {}
func (ParticipantJoined) roomSignal()     {}
func (ParticipantLeft) roomSignal()       {}
func (TrackSubscribed) roomSignal()       {}
func (TrackUnsubscribed) roomSignal()     {}
func (TranscriptionReceived) roomSignal() {}
