// Package voice owns the lifecycle of a single agent voice session: the
// session handshake, the media room, the connection state machine and the
// application event stream.
//
// A Manager does not cancel an in-flight Connect when Disconnect is called,
// and it never reconnects after the room drops. Both are left to the caller.
package voice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"agentvoice/native/internal/api"
	"agentvoice/native/internal/domain"
	"agentvoice/native/internal/events"
	"agentvoice/native/internal/webrtc"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Manager connects to an agent room and republishes room activity as events.
type Manager struct {
	cfg     Config
	issuer  domain.SessionIssuer
	newRoom domain.RoomFactory
	isAgent AgentMatcher
	logger  zerolog.Logger
	events  *events.Dispatcher

	mu            sync.Mutex
	state         domain.State
	room          domain.Room
	connecting    bool
	roomConnected bool
	sink          domain.AudioSink
	attachSeq     uint64
	pending       []domain.Event

	flushing atomic.Bool
}

// New creates a Manager in the idle state.
func New(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		isAgent: AgentPrefix(DefaultAgentPrefix),
		logger:  log.With().Str("module", "voice").Logger(),
		events:  events.NewDispatcher(),
		state:   domain.StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.issuer == nil {
		m.issuer = api.NewClient(cfg.APIBase, api.WithLogger(log.With().Str("module", "api").Logger()))
	}
	if m.newRoom == nil {
		m.newRoom = webrtc.NewRoomFactory(webrtc.Options{Logger: log.With().Str("module", "webrtc").Logger()})
	}
	m.events.SetLogger(m.logger)
	return m
}

// State returns the current connection state.
func (m *Manager) State() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the state belongs to a live session.
func (m *Manager) IsConnected() bool {
	return m.State().Connected()
}

// Events returns the dispatcher for typed subscriptions.
func (m *Manager) Events() *events.Dispatcher {
	return m.events
}

// On registers fn for kind.
func (m *Manager) On(kind domain.EventKind, fn events.Handler) *events.Subscription {
	return m.events.On(kind, fn)
}

// Off removes a registration returned by On.
func (m *Manager) Off(sub *events.Subscription) {
	m.events.Off(sub)
}

// Connect issues a session, joins its room and enables the microphone.
// Every failure moves the manager to the error state, emits an error event
// and releases the room before it is returned.
func (m *Manager) Connect(ctx context.Context, opts ConnectOptions) error {
	m.mu.Lock()
	if m.room != nil || m.connecting {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.connecting = true
	m.setStateLocked(domain.StateConnecting)
	m.mu.Unlock()
	m.flush()

	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	session, err := m.issuer.CreateSession(ctx, domain.SessionRequest{
		AgentToken: m.cfg.Credential,
		UserID:     opts.UserID,
	})
	if err != nil {
		m.logger.Error().Err(err).Msg("session request failed")
		return m.fail(nil, err)
	}
	m.logger.Info().Str("session_id", session.ID).Str("url", session.ConnectionURL).Msg("session created")
	m.enqueue(domain.SessionCreatedEvent{SessionID: session.ID})

	room := m.newRoom()
	m.mu.Lock()
	m.room = room
	m.roomConnected = false
	m.mu.Unlock()
	room.Subscribe(func(sig domain.Signal) {
		m.handleSignal(room, sig)
	})

	if err := room.Connect(ctx, session.ConnectionURL, session.ConnectionToken); err != nil {
		m.logger.Error().Err(err).Msg("room connect failed")
		return m.fail(nil, err)
	}
	if err := room.SetMicrophoneEnabled(ctx, true); err != nil {
		m.logger.Error().Err(err).Msg("enable microphone failed")
		return m.fail(room, err)
	}

	// Transports that report the join only through Connect's return value
	// still have to leave the connecting state.
	m.handleSignal(room, domain.RoomConnected{})
	return nil
}

// Disconnect leaves the room, if any, and returns to idle. It is safe to call
// in any state.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	room := m.room
	m.mu.Unlock()

	var err error
	if room != nil {
		if derr := room.Disconnect(ctx); derr != nil {
			m.logger.Warn().Err(derr).Msg("room disconnect failed")
			err = fmt.Errorf("disconnect room: %w", derr)
		}
	}

	m.mu.Lock()
	sink := m.cleanupLocked()
	m.setStateLocked(domain.StateIdle)
	m.mu.Unlock()

	closeSink(m.logger, sink)
	m.flush()
	m.logger.Info().Msg("disconnected")
	return err
}

// fail runs the shared error path of Connect. A non-nil room is connected
// and is left in the background once the manager no longer owns it.
func (m *Manager) fail(room domain.Room, err error) error {
	m.mu.Lock()
	m.setStateLocked(domain.StateError)
	m.pending = append(m.pending, domain.ErrorEvent{Err: err})
	sink := m.cleanupLocked()
	m.mu.Unlock()

	closeSink(m.logger, sink)
	if room != nil {
		if derr := room.Disconnect(context.Background()); derr != nil {
			m.logger.Warn().Err(derr).Msg("disconnect after failure")
		}
	}
	m.flush()
	return err
}

func (m *Manager) handleSignal(room domain.Room, sig domain.Signal) {
	m.mu.Lock()
	if room == nil || m.room != room {
		m.mu.Unlock()
		m.logger.Debug().Str("signal", fmt.Sprintf("%T", sig)).Msg("ignoring signal from released room")
		return
	}
	if _, ok := sig.(domain.RoomConnected); ok {
		if m.roomConnected {
			m.mu.Unlock()
			return
		}
		m.roomConnected = true
	}

	out := step(m.state, sig, m.isAgent, m.cfg.ManualAudio)
	m.state = out.state
	m.pending = append(m.pending, out.events...)

	var released domain.AudioSink
	if out.cleanup {
		released = m.cleanupLocked()
	} else if out.release {
		released, m.sink = m.sink, nil
		m.attachSeq++
	}
	var seq uint64
	if out.attach != nil {
		m.attachSeq++
		seq = m.attachSeq
	}
	m.mu.Unlock()

	closeSink(m.logger, released)
	if out.attach != nil {
		m.attach(room, out.attach, seq)
	}
	m.flush()
}

// attach opens playback for track. seq identifies the subscription; a
// release or cleanup while Attach runs makes the new sink stale.
func (m *Manager) attach(room domain.Room, track domain.Track, seq uint64) {
	sink, err := track.Attach()
	if err != nil {
		m.logger.Warn().Err(err).Str("track", track.SID()).Msg("attach playback")
		return
	}

	m.mu.Lock()
	if m.room != room || m.attachSeq != seq {
		m.mu.Unlock()
		m.logger.Debug().Str("track", track.SID()).Msg("track ended during attach")
		closeSink(m.logger, sink)
		return
	}
	previous := m.sink
	m.sink = sink
	m.mu.Unlock()

	closeSink(m.logger, previous)
	m.logger.Debug().Str("track", track.SID()).Msg("playback attached")
}

// cleanupLocked drops the room and hands back the sink for closing outside
// the lock.
func (m *Manager) cleanupLocked() domain.AudioSink {
	sink := m.sink
	m.sink = nil
	m.attachSeq++
	m.room = nil
	m.roomConnected = false
	return sink
}

func (m *Manager) setStateLocked(s domain.State) {
	if m.state == s {
		return
	}
	m.state = s
	m.pending = append(m.pending, domain.StateChangeEvent{State: s})
	m.logger.Debug().Str("state", string(s)).Msg("state changed")
}

func (m *Manager) enqueue(ev domain.Event) {
	m.mu.Lock()
	m.pending = append(m.pending, ev)
	m.mu.Unlock()
	m.flush()
}

// flush delivers queued events outside the manager lock. Only one goroutine
// flushes at a time; events queued by a handler are delivered by the active
// flusher after the handler returns, which keeps emission order global.
func (m *Manager) flush() {
	if !m.flushing.CompareAndSwap(false, true) {
		return
	}
	for {
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		if len(batch) == 0 {
			m.flushing.Store(false)
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		for _, ev := range batch {
			m.events.Emit(ev)
		}
	}
}

func closeSink(logger zerolog.Logger, sink domain.AudioSink) {
	if sink == nil {
		return
	}
	if err := sink.Close(); err != nil {
		logger.Warn().Err(err).Msg("close playback sink")
	}
}
