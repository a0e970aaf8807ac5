package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"agentvoice/native/internal/domain"
	"agentvoice/native/internal/events"
	"agentvoice/native/internal/voice"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeSession struct {
	mu          sync.Mutex
	d           *events.Dispatcher
	state       domain.State
	connects    int
	disconnects int
	lastUserID  string
	connectErr  error
}

func newFakeSession() *fakeSession {
	return &fakeSession{d: events.NewDispatcher(), state: domain.StateIdle}
}

func (f *fakeSession) Connect(ctx context.Context, opts voice.ConnectOptions) error {
	f.mu.Lock()
	f.connects++
	f.lastUserID = opts.UserID
	f.mu.Unlock()
	return f.connectErr
}

func (f *fakeSession) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) State() domain.State { return f.state }

func (f *fakeSession) On(kind domain.EventKind, fn events.Handler) *events.Subscription {
	return f.d.On(kind, fn)
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// update applies msg and returns the concrete model.
func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_MirrorsState(t *testing.T) {
	var seen []domain.State
	m := New(newFakeSession(), Config{Callbacks: Callbacks{
		OnStateChange: func(s domain.State) { seen = append(seen, s) },
	}})

	m, cmd := update(t, m, eventMsg{event: domain.StateChangeEvent{State: domain.StateWaiting}})
	if cmd == nil {
		t.Error("expected the model to keep listening for events")
	}
	if m.State() != domain.StateWaiting || !m.IsConnected() {
		t.Errorf("state = %s, connected = %v", m.State(), m.IsConnected())
	}
	if len(seen) != 1 || seen[0] != domain.StateWaiting {
		t.Errorf("callback saw %v", seen)
	}
	if !strings.Contains(m.View(), "waiting") {
		t.Errorf("view does not show state:\n%s", m.View())
	}
}

func TestModel_LastErrorClearedOnConnected(t *testing.T) {
	m := New(newFakeSession(), Config{})

	m, _ = update(t, m, eventMsg{event: domain.ErrorEvent{Err: errors.New("Invalid agent token")}})
	if m.LastError() != "Invalid agent token" {
		t.Fatalf("LastError = %q", m.LastError())
	}
	if !strings.Contains(m.View(), "Invalid agent token") {
		t.Error("view does not surface the error")
	}

	m, _ = update(t, m, eventMsg{event: domain.ConnectedEvent{}})
	if m.LastError() != "" {
		t.Errorf("expected error cleared, got %q", m.LastError())
	}
}

func TestModel_TranscriptLog(t *testing.T) {
	var turns []string
	m := New(newFakeSession(), Config{Callbacks: Callbacks{
		OnUserTurnComplete: func(text string) { turns = append(turns, text) },
	}})

	m, _ = update(t, m, eventMsg{event: domain.AgentConnectedEvent{Identity: "agent-7"}})
	m, _ = update(t, m, eventMsg{event: domain.TranscriptEvent{Text: "hello"}})
	m, _ = update(t, m, eventMsg{event: domain.UserTurnCompleteEvent{Text: "hello"}})
	m, _ = update(t, m, eventMsg{event: domain.ResponseEvent{Text: "hi there"}})
	m, _ = update(t, m, eventMsg{event: domain.TranscriptEvent{Text: ""}})

	view := m.View()
	for _, want := range []string{"agent-7", "hello", "hi there"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if len(m.log) != 2 {
		t.Errorf("expected 2 log lines, got %d", len(m.log))
	}
	if len(turns) != 1 || turns[0] != "hello" {
		t.Errorf("turns = %v", turns)
	}

	m, _ = update(t, m, eventMsg{event: domain.AgentDisconnectedEvent{}})
	if strings.Contains(m.View(), "agent-7") {
		t.Error("expected agent cleared after it left")
	}
}

func TestModel_AutoConnectOnce(t *testing.T) {
	session := newFakeSession()
	m := New(session, Config{AutoConnect: true, UserID: "u-1"})

	cmd := m.Init()
	if cmd == nil {
		t.Fatal("expected init command")
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok || len(batch) != 2 {
		t.Fatalf("expected listen and connect commands, got %#v", batch)
	}
	if _, ok := batch[1]().(connectDoneMsg); !ok {
		t.Fatal("expected the second command to connect")
	}

	// A repeated Init on the same mount only resumes listening.
	m.Init()

	if session.connects != 1 || session.lastUserID != "u-1" {
		t.Errorf("connects = %d, user = %q", session.connects, session.lastUserID)
	}
	if !m.bridge.autoConnected {
		t.Error("expected auto connect to be recorded")
	}
}

func TestModel_NoAutoConnect(t *testing.T) {
	m := New(newFakeSession(), Config{})
	m.Init()
	if m.bridge.autoConnected {
		t.Error("did not expect auto connect")
	}
}

func TestModel_ConnectKey(t *testing.T) {
	session := newFakeSession()
	m := New(session, Config{})

	m, cmd := update(t, m, keyMsg("c"))
	if cmd == nil {
		t.Fatal("expected connect command")
	}
	msg := cmd()
	if _, ok := msg.(connectDoneMsg); !ok {
		t.Fatalf("unexpected message %T", msg)
	}
	if session.connects != 1 {
		t.Errorf("connects = %d", session.connects)
	}

	// A second press while the first connect is in flight is ignored.
	if _, cmd := update(t, m, keyMsg("c")); cmd != nil {
		t.Error("expected no command while busy")
	}
}

func TestModel_ConnectKeyIgnoredWhenConnected(t *testing.T) {
	m := New(newFakeSession(), Config{})
	m, _ = update(t, m, eventMsg{event: domain.StateChangeEvent{State: domain.StateReady}})

	if _, cmd := update(t, m, keyMsg("c")); cmd != nil {
		t.Error("expected no command when already connected")
	}
}

func TestModel_DisconnectKey(t *testing.T) {
	session := newFakeSession()
	m := New(session, Config{})

	_, cmd := update(t, m, keyMsg("d"))
	if cmd == nil {
		t.Fatal("expected disconnect command")
	}
	cmd()
	if session.disconnects != 1 {
		t.Errorf("disconnects = %d", session.disconnects)
	}
}

func TestModel_UnmountDisconnectsAndUnsubscribes(t *testing.T) {
	session := newFakeSession()
	m := New(session, Config{})
	if n := session.d.Count(domain.EventStateChange); n != 1 {
		t.Fatalf("expected one subscription, got %d", n)
	}

	m.unmount()()
	m.unmount()()

	if session.disconnects != 2 {
		t.Errorf("disconnects = %d", session.disconnects)
	}
	for _, kind := range domain.EventKinds {
		if n := session.d.Count(kind); n != 0 {
			t.Errorf("%s still has %d subscriptions", kind, n)
		}
	}
	if msg := m.waitForEvent()(); msg != nil {
		t.Errorf("expected nil after unmount, got %T", msg)
	}
}

func TestModel_BridgeDeliversEvents(t *testing.T) {
	session := newFakeSession()
	m := New(session, Config{})

	session.d.Emit(domain.SessionCreatedEvent{SessionID: "ses_1"})
	msg := m.waitForEvent()()

	ev, ok := msg.(eventMsg)
	if !ok {
		t.Fatalf("unexpected message %T", msg)
	}
	m, _ = update(t, m, ev)
	if !strings.Contains(m.View(), "ses_1") {
		t.Error("view does not show the session id")
	}
}

func TestModel_WithManager(t *testing.T) {
	mgr := voice.New(voice.Config{Credential: "agt"},
		voice.WithSessionIssuer(issuerFunc(func(context.Context, domain.SessionRequest) (*domain.Session, error) {
			return nil, errors.New("Invalid agent token")
		})),
	)
	m := New(mgr, Config{})

	_ = mgr.Connect(context.Background(), voice.ConnectOptions{})

	for i := 0; i < 3; i++ {
		ev, ok := m.waitForEvent()().(eventMsg)
		if !ok {
			t.Fatal("expected event")
		}
		m, _ = update(t, m, ev)
	}
	if m.State() != domain.StateError || m.LastError() != "Invalid agent token" {
		t.Errorf("state = %s, lastError = %q", m.State(), m.LastError())
	}
}

type issuerFunc func(context.Context, domain.SessionRequest) (*domain.Session, error)

func (f issuerFunc) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Session, error) {
	return f(ctx, req)
}
