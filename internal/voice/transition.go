package voice

import (
	"strings"

	"agentvoice/native/internal/domain"
)

// AgentMatcher reports whether a participant identity belongs to the agent.
type AgentMatcher func(identity string) bool

// AgentPrefix matches identities that start with prefix.
func AgentPrefix(prefix string) AgentMatcher {
	return func(identity string) bool {
		return identity != "" && strings.HasPrefix(identity, prefix)
	}
}

// DefaultAgentPrefix is the identity prefix agent workers join rooms with.
const DefaultAgentPrefix = "agent-"

// outcome is the result of applying one room signal to a state.
type outcome struct {
	state   domain.State
	events  []domain.Event
	attach  domain.Track
	release bool
	cleanup bool
}

func (o *outcome) setState(s domain.State) {
	if s == o.state {
		return
	}
	o.state = s
	o.events = append(o.events, domain.StateChangeEvent{State: s})
}

func (o *outcome) emit(ev domain.Event) {
	o.events = append(o.events, ev)
}

// step maps (state, signal) to the next state, the events to emit and the
// playback side effects. It does not touch the room or any sink.
func step(cur domain.State, sig domain.Signal, isAgent AgentMatcher, manualAudio bool) outcome {
	o := outcome{state: cur}

	switch s := sig.(type) {
	case domain.RoomConnected:
		o.emit(domain.ConnectedEvent{})
		o.setState(domain.StateWaiting)

	case domain.RoomDisconnected:
		o.setState(domain.StateIdle)
		o.emit(domain.DisconnectedEvent{})
		o.cleanup = true

	case domain.ParticipantJoined:
		if isAgent(s.Participant.Identity) {
			o.setState(domain.StateReady)
			o.emit(domain.AgentConnectedEvent{
				Identity: s.Participant.Identity,
				Metadata: s.Participant.Metadata,
			})
		}

	case domain.ParticipantLeft:
		if isAgent(s.Participant.Identity) {
			o.emit(domain.AgentDisconnectedEvent{})
			o.setState(domain.StateWaiting)
		}

	case domain.TrackSubscribed:
		if s.Track == nil || s.Track.Kind() != domain.TrackKindAudio || !isAgent(s.Participant.Identity) {
			break
		}
		o.setState(domain.StateSpeaking)
		o.emit(domain.AudioTrackEvent{Track: s.Track})
		if !manualAudio {
			o.attach = s.Track
		}

	case domain.TrackUnsubscribed:
		if s.Track == nil || s.Track.Kind() != domain.TrackKindAudio {
			break
		}
		o.emit(domain.AudioTrackEndedEvent{})
		o.release = true
		o.setState(domain.StateReady)

	case domain.TranscriptionReceived:
		text, final := joinSegments(s.Segments)
		if isAgent(s.Participant.Identity) {
			if cur == domain.StateProcessing || cur == domain.StateReady {
				o.setState(domain.StateSpeaking)
			}
			o.emit(domain.ResponseEvent{Text: text})
			if final && text != "" {
				o.setState(domain.StateReady)
			}
			break
		}
		o.emit(domain.TranscriptEvent{Text: text})
		if final && text != "" {
			o.setState(domain.StateProcessing)
			o.emit(domain.UserTurnCompleteEvent{Text: text})
		}
	}

	return o
}

// joinSegments concatenates segment texts with single spaces. The set is
// final when any segment in it is final.
func joinSegments(segments []domain.Segment) (string, bool) {
	parts := make([]string, 0, len(segments))
	final := false
	for _, seg := range segments {
		if seg.Final {
			final = true
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), final
}
