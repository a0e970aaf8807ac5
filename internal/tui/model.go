// Package tui is a terminal front end for a voice session. It mirrors the
// session's events into Bubble Tea state.
package tui

import (
	"context"
	"fmt"
	"strings"

	"agentvoice/native/internal/domain"
	"agentvoice/native/internal/events"
	"agentvoice/native/internal/voice"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxLogLines = 200

// Session is the part of a voice.Manager the model drives.
type Session interface {
	Connect(ctx context.Context, opts voice.ConnectOptions) error
	Disconnect(ctx context.Context) error
	State() domain.State
	On(kind domain.EventKind, fn events.Handler) *events.Subscription
}

// Callbacks receive session events after the model has applied them.
type Callbacks struct {
	OnStateChange       func(domain.State)
	OnTranscript        func(text string)
	OnResponse          func(text string)
	OnError             func(err error)
	OnConnected         func()
	OnDisconnected      func()
	OnAudioTrack        func(domain.Track)
	OnAudioTrackEnded   func()
	OnAgentConnected    func(identity, metadata string)
	OnAgentDisconnected func()
	OnUserTurnComplete  func(text string)
	OnSessionCreated    func(sessionID string)
}

// Config configures a Model.
type Config struct {
	AutoConnect bool
	UserID      string
	Callbacks   Callbacks
}

type eventMsg struct{ event domain.Event }

type connectDoneMsg struct{ err error }

type disconnectDoneMsg struct{ err error }

// bridge carries events from dispatcher goroutines into the program and
// holds the per-mount state shared by every copy of the model.
type bridge struct {
	ch            chan domain.Event
	done          chan struct{}
	subs          []*events.Subscription
	autoConnected bool
	closed        bool
}

// Model is the root Bubble Tea model.
type Model struct {
	session Session
	cfg     Config
	keys    KeyMap
	bridge  *bridge

	width int

	state     domain.State
	agent     string
	sessionID string
	lastError string
	log       []string
	busy      bool
}

// New creates the model and subscribes it to every session event.
func New(session Session, cfg Config) Model {
	b := &bridge{
		ch:   make(chan domain.Event, 64),
		done: make(chan struct{}),
	}
	for _, kind := range domain.EventKinds {
		b.subs = append(b.subs, session.On(kind, func(ev domain.Event) {
			select {
			case b.ch <- ev:
			case <-b.done:
			}
		}))
	}
	return Model{
		session: session,
		cfg:     cfg,
		keys:    DefaultKeyMap(),
		bridge:  b,
		state:   session.State(),
	}
}

// State returns the mirrored connection state.
func (m Model) State() domain.State { return m.state }

// IsConnected reports whether the mirrored state belongs to a live session.
func (m Model) IsConnected() bool { return m.state.Connected() }

// LastError returns the message of the most recent error, if any.
func (m Model) LastError() string { return m.lastError }

// Init starts listening for events and auto-connects once per mount.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForEvent()}
	if m.cfg.AutoConnect && !m.bridge.autoConnected {
		m.bridge.autoConnected = true
		cmds = append(cmds, m.connect())
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m = m.apply(msg.event)
		return m, m.waitForEvent()

	case connectDoneMsg:
		m.busy = false
		return m, nil

	case disconnectDoneMsg:
		m.busy = false
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Sequence(m.unmount(), tea.Quit)

	case key.Matches(msg, m.keys.Connect):
		if m.busy || m.IsConnected() {
			return m, nil
		}
		m.busy = true
		return m, m.connect()

	case key.Matches(msg, m.keys.Disconnect):
		m.busy = true
		return m, m.disconnect()
	}
	return m, nil
}

// apply mirrors ev into the model and forwards it to the callbacks.
func (m Model) apply(ev domain.Event) Model {
	cb := m.cfg.Callbacks
	switch e := ev.(type) {
	case domain.StateChangeEvent:
		m.state = e.State
		if cb.OnStateChange != nil {
			cb.OnStateChange(e.State)
		}
	case domain.TranscriptEvent:
		m.appendLog(userStyle.Render("you")+"   "+e.Text, e.Text)
		if cb.OnTranscript != nil {
			cb.OnTranscript(e.Text)
		}
	case domain.ResponseEvent:
		m.appendLog(agentStyle.Render("agent")+" "+e.Text, e.Text)
		if cb.OnResponse != nil {
			cb.OnResponse(e.Text)
		}
	case domain.ErrorEvent:
		if e.Err != nil {
			m.lastError = e.Err.Error()
		}
		if cb.OnError != nil {
			cb.OnError(e.Err)
		}
	case domain.ConnectedEvent:
		m.lastError = ""
		if cb.OnConnected != nil {
			cb.OnConnected()
		}
	case domain.DisconnectedEvent:
		m.agent = ""
		if cb.OnDisconnected != nil {
			cb.OnDisconnected()
		}
	case domain.AudioTrackEvent:
		if cb.OnAudioTrack != nil {
			cb.OnAudioTrack(e.Track)
		}
	case domain.AudioTrackEndedEvent:
		if cb.OnAudioTrackEnded != nil {
			cb.OnAudioTrackEnded()
		}
	case domain.AgentConnectedEvent:
		m.agent = e.Identity
		if cb.OnAgentConnected != nil {
			cb.OnAgentConnected(e.Identity, e.Metadata)
		}
	case domain.AgentDisconnectedEvent:
		m.agent = ""
		if cb.OnAgentDisconnected != nil {
			cb.OnAgentDisconnected()
		}
	case domain.UserTurnCompleteEvent:
		if cb.OnUserTurnComplete != nil {
			cb.OnUserTurnComplete(e.Text)
		}
	case domain.SessionCreatedEvent:
		m.sessionID = e.SessionID
		if cb.OnSessionCreated != nil {
			cb.OnSessionCreated(e.SessionID)
		}
	}
	return m
}

// appendLog adds a transcript line. Empty interim results are skipped.
func (m *Model) appendLog(line, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = append([]string(nil), m.log[len(m.log)-maxLogLines:]...)
	}
}

func (m Model) waitForEvent() tea.Cmd {
	b := m.bridge
	return func() tea.Msg {
		select {
		case ev := <-b.ch:
			return eventMsg{event: ev}
		case <-b.done:
			return nil
		}
	}
}

func (m Model) connect() tea.Cmd {
	session, userID := m.session, m.cfg.UserID
	return func() tea.Msg {
		return connectDoneMsg{err: session.Connect(context.Background(), voice.ConnectOptions{UserID: userID})}
	}
}

func (m Model) disconnect() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return disconnectDoneMsg{err: session.Disconnect(context.Background())}
	}
}

// unmount disconnects the session and drops every subscription.
func (m Model) unmount() tea.Cmd {
	session, b := m.session, m.bridge
	return func() tea.Msg {
		err := session.Disconnect(context.Background())
		if !b.closed {
			b.closed = true
			for _, sub := range b.subs {
				sub.Unsubscribe()
			}
			close(b.done)
		}
		return disconnectDoneMsg{err: err}
	}
}

// View renders the model.
func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("agent voice"))
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render("state") + stateBadge(m.state) + "\n")

	agent := "not joined"
	if m.agent != "" {
		agent = m.agent
	}
	sb.WriteString(labelStyle.Render("agent") + agent + "\n")
	if m.sessionID != "" {
		sb.WriteString(labelStyle.Render("session") + m.sessionID + "\n")
	}
	if m.lastError != "" {
		sb.WriteString(labelStyle.Render("error") + errorStyle.Render(m.lastError) + "\n")
	}

	if len(m.log) > 0 {
		sb.WriteString("\n")
		lines := m.log
		if len(lines) > 10 {
			lines = lines[len(lines)-10:]
		}
		width := m.width
		if width <= 0 {
			width = 80
		}
		sb.WriteString(lipgloss.NewStyle().MaxWidth(width).Render(strings.Join(lines, "\n")))
		sb.WriteString("\n")
	}

	sb.WriteString(helpStyle.Render(fmt.Sprintf("%s • %s • %s",
		helpEntry(m.keys.Connect), helpEntry(m.keys.Disconnect), helpEntry(m.keys.Quit))))
	return sb.String()
}

func helpEntry(b key.Binding) string {
	h := b.Help()
	return h.Key + " " + h.Desc
}
