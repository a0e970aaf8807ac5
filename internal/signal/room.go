// Package signal implements a JSON-over-websocket room for agents that do
// not speak WebRTC, and for local testing.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"agentvoice/native/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	methodAuth              = "AUTH"
	methodAuthResponse      = "AUTH_RESPONSE"
	methodParticipantJoined = "PARTICIPANT_JOINED"
	methodParticipantLeft   = "PARTICIPANT_LEFT"
	methodTrackSubscribed   = "TRACK_SUBSCRIBED"
	methodTrackUnsubscribed = "TRACK_UNSUBSCRIBED"
	methodTranscription     = "TRANSCRIPTION"
	methodRoomClosed        = "ROOM_CLOSED"
	methodMicrophone        = "MICROPHONE"
)

// DefaultPingInterval is used when Options.PingInterval is zero.
const DefaultPingInterval = 15 * time.Second

// message is the generic WebSocket message envelope.
type message struct {
	Method      string       `json:"method"`
	Code        *int         `json:"code,omitempty"`
	Message     string       `json:"message,omitempty"`
	AccessToken string       `json:"accessToken,omitempty"`
	Participant *participant `json:"participant,omitempty"`
	TrackSID    string       `json:"trackSid,omitempty"`
	Kind        string       `json:"kind,omitempty"`
	Segments    []segment    `json:"segments,omitempty"`
	Enabled     *bool        `json:"enabled,omitempty"`
}

type participant struct {
	Identity string `json:"identity"`
	Metadata string `json:"metadata,omitempty"`
}

type segment struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Options configure a websocket room.
type Options struct {
	PingInterval time.Duration
	Dialer       *websocket.Dialer
	Logger       *zerolog.Logger
}

// NewRoomFactory returns a factory producing one websocket room per call.
func NewRoomFactory(opts Options) domain.RoomFactory {
	return func() domain.Room {
		return NewRoom(opts)
	}
}

// Room is a domain.Room carried over a websocket.
type Room struct {
	pingInterval time.Duration
	dialer       *websocket.Dialer
	logger       zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(domain.Signal)
	joined  bool
	backlog []domain.Signal
	authed  chan error

	closed         chan struct{}
	closeOnce      sync.Once
	disconnectOnce sync.Once
}

// NewRoom creates an unconnected room.
func NewRoom(opts Options) *Room {
	r := &Room{
		pingInterval: opts.PingInterval,
		dialer:       opts.Dialer,
		authed:       make(chan error, 1),
		closed:       make(chan struct{}),
	}
	if r.pingInterval <= 0 {
		r.pingInterval = DefaultPingInterval
	}
	if r.dialer == nil {
		r.dialer = websocket.DefaultDialer
	}
	if opts.Logger != nil {
		r.logger = *opts.Logger
	} else {
		r.logger = log.With().Str("module", "signal").Logger()
	}
	return r
}

// Subscribe sets the signal handler. It must be called before Connect.
func (r *Room) Subscribe(h func(domain.Signal)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Connect dials the room, authenticates and starts the read and ping loops.
func (r *Room) Connect(ctx context.Context, rawURL, token string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse room url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	r.logger.Info().Str("host", u.Host).Str("path", u.Path).Msg("connecting")

	conn, _, err := r.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	go r.readLoop()

	if err := r.sendJSON(message{Method: methodAuth, AccessToken: token}); err != nil {
		r.close()
		return fmt.Errorf("send auth: %w", err)
	}

	select {
	case err := <-r.authed:
		if err != nil {
			r.close()
			return err
		}
	case <-ctx.Done():
		r.close()
		return ctx.Err()
	}

	go r.pingLoop()

	r.mu.Lock()
	queued := append([]domain.Signal{domain.RoomConnected{}}, r.backlog...)
	r.backlog = nil
	h := r.handler
	r.mu.Unlock()

	for {
		if h != nil {
			for _, sig := range queued {
				h(sig)
			}
		}
		r.mu.Lock()
		if len(r.backlog) == 0 {
			r.joined = true
			r.mu.Unlock()
			return nil
		}
		queued, r.backlog = r.backlog, nil
		r.mu.Unlock()
	}
}

// Disconnect closes the socket. The disconnected signal is delivered once.
func (r *Room) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		r.mu.Lock()
		err := conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		r.mu.Unlock()
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			r.logger.Debug().Err(err).Msg("close handshake")
		}
	}
	r.close()
	r.disconnected()
	return nil
}

// SetMicrophoneEnabled tells the room whether the user is publishing audio.
func (r *Room) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	if err := r.sendJSON(message{Method: methodMicrophone, Enabled: &enabled}); err != nil {
		return fmt.Errorf("set microphone: %w", err)
	}
	return nil
}

func (r *Room) close() {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
}

// disconnected reports the end of the room once. A loss before the join
// completes is delivered after RoomConnected.
func (r *Room) disconnected() {
	r.disconnectOnce.Do(func() {
		r.emit(domain.RoomDisconnected{})
	})
}

func (r *Room) sendJSON(msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Method, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return fmt.Errorf("room not connected")
	}
	r.logger.Debug().Str("method", msg.Method).Msg(">>>")
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

func (r *Room) readLoop() {
	defer r.disconnected()
	defer r.close()

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.closed:
			default:
				r.logger.Warn().Err(err).Msg("read error")
			}
			r.failAuth(fmt.Errorf("connection closed before auth: %w", err))
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Warn().Err(err).Msg("unmarshal error")
			continue
		}
		r.logger.Debug().Str("method", msg.Method).Msg("<<<")

		if msg.Method == methodRoomClosed {
			r.logger.Info().Msg("room closed by server")
			return
		}
		r.dispatch(msg)
	}
}

func (r *Room) dispatch(msg message) {
	switch msg.Method {
	case methodAuthResponse:
		if msg.Code != nil && *msg.Code == 0 {
			r.logger.Info().Msg("auth successful")
			r.failAuth(nil)
			return
		}
		code := -1
		if msg.Code != nil {
			code = *msg.Code
		}
		r.failAuth(fmt.Errorf("auth failed: code=%d msg=%s", code, msg.Message))

	case methodParticipantJoined:
		r.emit(domain.ParticipantJoined{Participant: msg.participant()})

	case methodParticipantLeft:
		r.emit(domain.ParticipantLeft{Participant: msg.participant()})

	case methodTrackSubscribed:
		r.emit(domain.TrackSubscribed{Track: msg.track(), Participant: msg.participant()})

	case methodTrackUnsubscribed:
		r.emit(domain.TrackUnsubscribed{Track: msg.track(), Participant: msg.participant()})

	case methodTranscription:
		segs := make([]domain.Segment, 0, len(msg.Segments))
		for _, s := range msg.Segments {
			segs = append(segs, domain.Segment{ID: s.ID, Text: s.Text, Final: s.Final})
		}
		r.emit(domain.TranscriptionReceived{Segments: segs, Participant: msg.participant()})

	default:
		r.logger.Debug().Str("method", msg.Method).Msg("unhandled method")
	}
}

// failAuth settles the pending auth wait. Later calls are dropped.
func (r *Room) failAuth(err error) {
	select {
	case r.authed <- err:
	default:
	}
}

// emit delivers sig, holding it back until the join has completed.
func (r *Room) emit(sig domain.Signal) {
	r.mu.Lock()
	if !r.joined {
		r.backlog = append(r.backlog, sig)
		r.mu.Unlock()
		return
	}
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h(sig)
	}
}

func (r *Room) pingLoop() {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.closed:
			return
		case <-ticker.C:
			r.mu.Lock()
			err := r.conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(5*time.Second),
			)
			r.mu.Unlock()
			if err != nil {
				select {
				case <-r.closed:
				default:
					r.logger.Warn().Err(err).Msg("ping error")
				}
				return
			}
		}
	}
}

func (m message) participant() domain.Participant {
	if m.Participant == nil {
		return domain.Participant{}
	}
	return domain.Participant{Identity: m.Participant.Identity, Metadata: m.Participant.Metadata}
}

func (m message) track() domain.Track {
	kind := domain.TrackKind(m.Kind)
	if kind != domain.TrackKindAudio {
		kind = domain.TrackKindVideo
	}
	return track{sid: m.TrackSID, kind: kind}
}

// track is a remote track announced over the socket. It carries no media.
type track struct {
	sid  string
	kind domain.TrackKind
}

func (t track) SID() string            { return t.sid }
func (t track) Kind() domain.TrackKind { return t.kind }

func (t track) Attach() (domain.AudioSink, error) {
	return nopSink{}, nil
}

type nopSink struct{}

func (nopSink) Close() error { return nil }
