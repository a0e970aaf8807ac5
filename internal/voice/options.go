package voice

import (
	"agentvoice/native/internal/domain"

	"github.com/rs/zerolog"
)

// Config is the fixed configuration of a Manager.
type Config struct {
	// Credential is the application-issued agent token.
	Credential string
	// APIBase is the session API location. Empty selects the default.
	APIBase string
	// ManualAudio disables automatic playback of the agent's audio track.
	ManualAudio bool
}

// ConnectOptions are per-connect parameters.
type ConnectOptions struct {
	UserID string
}

// Option configures a Manager.
type Option func(*Manager)

// WithSessionIssuer replaces the HTTP session issuer.
func WithSessionIssuer(issuer domain.SessionIssuer) Option {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

// WithRoomFactory replaces the media-room factory.
func WithRoomFactory(factory domain.RoomFactory) Option {
	return func(m *Manager) {
		m.newRoom = factory
	}
}

// WithAgentMatcher sets the predicate that recognises agent participants.
func WithAgentMatcher(match AgentMatcher) Option {
	return func(m *Manager) {
		m.isAgent = match
	}
}

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}
