package domain

// State is the connection state of a voice session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateWaiting    State = "waiting"
	StateReady      State = "ready"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
	StateError      State = "error"
)

// Connected reports whether the state belongs to a live session.
func (s State) Connected() bool {
	return s != StateIdle && s != StateError
}

func (s State) String() string { return string(s) }
