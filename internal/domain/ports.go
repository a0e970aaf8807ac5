package domain

import "context"

// SessionIssuer exchanges an agent credential for a transient session.
type SessionIssuer interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Room is the media-room capability a voice session needs from its transport.
type Room interface {
	// Subscribe registers the handler for room signals. It must be called
	// before Connect so that early signals are not lost.
	Subscribe(handler func(Signal))
	Connect(ctx context.Context, url, token string) error
	Disconnect(ctx context.Context) error
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
}

// RoomFactory creates an unconnected Room.
type RoomFactory func() Room
