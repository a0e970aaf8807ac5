// Package devserver is a development session issuer: it checks agent tokens
// and hands out per-session room credentials.
package devserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"agentvoice/native/internal/api"
	"agentvoice/native/internal/config"
	"agentvoice/native/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Server issues sessions for known agent tokens.
type Server struct {
	tokens     []string
	roomURL    string
	roomPrefix string
	minter     TokenMinter
}

// New creates a Server from cfg, signing room tokens with minter.
func New(cfg *config.ServerConfig, minter TokenMinter) *Server {
	return &Server{
		tokens:     cfg.AgentTokens,
		roomURL:    cfg.RoomURL,
		roomPrefix: cfg.RoomPrefix,
		minter:     minter,
	}
}

// SetupRouter builds the gin engine serving the session API.
func SetupRouter(cfg *config.ServerConfig, s *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST(api.SessionPath, s.handleCreateSession)

	log.Info().Str("module", "devserver").Str("room_url", cfg.RoomURL).Int("agent_tokens", len(cfg.AgentTokens)).Msg("router setup")
	return r
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req domain.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AgentToken == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "agent_token is required"})
		return
	}

	requestID := c.GetHeader("X-Request-ID")
	if !s.knownToken(req.AgentToken) {
		log.Warn().Str("module", "devserver").Str("request_id", requestID).Msg("rejected agent token")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid agent token"})
		return
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	identity := req.UserID
	if identity == "" {
		identity = "user-" + id[:8]
	}
	room := s.roomPrefix + id

	token, err := s.minter.Mint(Grant{Room: room, Identity: identity, Name: identity})
	if err != nil {
		log.Error().Str("module", "devserver").Err(err).Msg("mint room token")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not issue room token"})
		return
	}

	session := domain.Session{
		ID:              "ses_" + id,
		ConnectionToken: token,
		ConnectionURL:   s.roomURL,
	}
	log.Info().Str("module", "devserver").Str("request_id", requestID).Str("session_id", session.ID).Str("room", room).Str("identity", identity).Msg("session issued")
	c.JSON(http.StatusOK, session)
}

func (s *Server) knownToken(token string) bool {
	for _, t := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return true
		}
	}
	return false
}
