package domain

// EventKind names an application event.
type EventKind string

const (
	EventStateChange       EventKind = "stateChange"
	EventTranscript        EventKind = "transcript"
	EventResponse          EventKind = "response"
	EventError             EventKind = "error"
	EventConnected         EventKind = "connected"
	EventDisconnected      EventKind = "disconnected"
	EventAudioTrack        EventKind = "audioTrack"
	EventAudioTrackEnded   EventKind = "audioTrackEnded"
	EventAgentConnected    EventKind = "agentConnected"
	EventAgentDisconnected EventKind = "agentDisconnected"
	EventUserTurnComplete  EventKind = "userTurnComplete"
	EventSessionCreated    EventKind = "sessionCreated"
)

// EventKinds lists every application event kind.
var EventKinds = []EventKind{
	EventStateChange,
	EventTranscript,
	EventResponse,
	EventError,
	EventConnected,
	EventDisconnected,
	EventAudioTrack,
	EventAudioTrackEnded,
	EventAgentConnected,
	EventAgentDisconnected,
	EventUserTurnComplete,
	EventSessionCreated,
}

// Event is an application event emitted by a voice session.
type Event interface {
	Kind() EventKind
}

// StateChangeEvent reports entry into a new connection state.
type StateChangeEvent struct{ State State }

// TranscriptEvent carries the user's transcribed speech.
type TranscriptEvent struct{ Text string }

// ResponseEvent carries the agent's transcribed speech.
type ResponseEvent struct{ Text string }

// ErrorEvent reports a failed connect.
type ErrorEvent struct{ Err error }

// ConnectedEvent reports that the room has been joined.
type ConnectedEvent struct{}

// DisconnectedEvent reports that the room has been left or dropped.
type DisconnectedEvent struct{}

// AudioTrackEvent reports a subscribed agent audio track.
type AudioTrackEvent struct{ Track Track }

// AudioTrackEndedEvent reports that an audio track was unsubscribed.
type AudioTrackEndedEvent struct{}

// AgentConnectedEvent reports that the agent joined the room.
type AgentConnectedEvent struct {
	Identity string
	Metadata string
}

// AgentDisconnectedEvent reports that the agent left the room.
type AgentDisconnectedEvent struct{}

// UserTurnCompleteEvent carries the final text of a user utterance.
type UserTurnCompleteEvent struct{ Text string }

// SessionCreatedEvent carries the id of the issued session.
type SessionCreatedEvent struct{ SessionID string }

func (StateChangeEvent) Kind() EventKind       { return EventStateChange }
func (TranscriptEvent) Kind() EventKind        { return EventTranscript }
func (ResponseEvent) Kind() EventKind          { return EventResponse }
func (ErrorEvent) Kind() EventKind             { return EventError }
func (ConnectedEvent) Kind() EventKind         { return EventConnected }
func (DisconnectedEvent) Kind() EventKind      { return EventDisconnected }
func (AudioTrackEvent) Kind() EventKind        { return EventAudioTrack }
func (AudioTrackEndedEvent) Kind() EventKind   { return EventAudioTrackEnded }
func (AgentConnectedEvent) Kind() EventKind    { return EventAgentConnected }
func (AgentDisconnectedEvent) Kind() EventKind { return EventAgentDisconnected }
func (UserTurnCompleteEvent) Kind() EventKind  { return EventUserTurnComplete }
func (SessionCreatedEvent) Kind() EventKind    { return EventSessionCreated }
