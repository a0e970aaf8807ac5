package devserver

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

// Grant describes who may join which room.
type Grant struct {
	Room     string
	Identity string
	Name     string
}

// TokenMinter issues room access tokens.
type TokenMinter interface {
	Mint(g Grant) (string, error)
}

// LiveKitMinter signs LiveKit access tokens with an API key pair.
type LiveKitMinter struct {
	APIKey    string
	APISecret string
	TTL       time.Duration
}

func (m LiveKitMinter) Mint(g Grant) (string, error) {
	at := auth.NewAccessToken(m.APIKey, m.APISecret).
		SetVideoGrant(&auth.VideoGrant{RoomJoin: true, Room: g.Room}).
		SetIdentity(g.Identity).
		SetName(g.Name).
		SetValidFor(m.TTL)

	jwt, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return jwt, nil
}
