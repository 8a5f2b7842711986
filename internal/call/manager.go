// Package call implements the video call lifecycle manager: the
// welcome → hairCheck → call screen progression, conversation provisioning
// on the video backend, and the realtime relay of script and interrupt
// signals into the running call.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/real-business/concierge/internal/locale"
	"github.com/real-business/concierge/internal/observe"
	"github.com/real-business/concierge/internal/session"
	"github.com/real-business/concierge/pkg/provider/videocall"
)

// Screen is the call UI screen the manager is on.
type Screen string

const (
	ScreenWelcome   Screen = "welcome"
	ScreenHairCheck Screen = "hairCheck"
	ScreenCall      Screen = "call"
)

// ErrHairCheckPending is returned by [Manager.Join] before the camera and
// microphone checks have passed.
var ErrHairCheckPending = errors.New("call: hair check not passed")

// ErrNoCall is returned by [Manager.Join] when no conversation is staged.
var ErrNoCall = errors.New("call: no conversation staged")

// Config holds all dependencies for a [Manager].
type Config struct {
	State  *session.State
	API    videocall.API
	Dialer videocall.SignalDialer

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// ReplicaID and PersonaID select the avatar on the video backend.
	ReplicaID string
	PersonaID string

	// AvatarName seeds the per-attempt conversation name.
	AvatarName string

	// WelcomeMessage is the greeting used when no assistant message exists yet.
	WelcomeMessage string
}

// Manager drives the video call lifecycle for one widget instance.
// All exported methods are safe for concurrent use.
type Manager struct {
	state   *session.State
	api     videocall.API
	dialer  videocall.SignalDialer
	metrics *observe.Metrics

	replicaID      string
	personaID      string
	avatarName     string
	welcomeMessage string

	mu           sync.Mutex
	screen       Screen
	starting     bool
	joined       bool
	cameraReady  bool
	micReady     bool
	conv         videocall.Conversation
	callLanguage string
	channel      videocall.SignalChannel
}

// NewManager creates a Manager on the welcome screen.
func NewManager(cfg Config) *Manager {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Manager{
		state:          cfg.State,
		api:            cfg.API,
		dialer:         cfg.Dialer,
		metrics:        metrics,
		replicaID:      cfg.ReplicaID,
		personaID:      cfg.PersonaID,
		avatarName:     cfg.AvatarName,
		welcomeMessage: cfg.WelcomeMessage,
		screen:         ScreenWelcome,
	}
}

// Screen returns the current call screen.
func (m *Manager) Screen() Screen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen
}

// Conversation returns the staged conversation, zero when none is active.
func (m *Manager) Conversation() videocall.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conv
}

// SetDeviceState records the hair-check camera and microphone readiness.
// No device I/O happens here; the host reports what it probed.
func (m *Manager) SetDeviceState(cameraReady, micReady bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameraReady = cameraReady
	m.micReady = micReady
}

// Start provisions a conversation on the video backend and, on success,
// opens its signal channel and moves to the hair-check screen. Calling Start
// while a start is in flight or a conversation is already staged is a no-op.
// Failures are logged and leave the manager on the welcome screen.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.starting || m.screen != ScreenWelcome {
		m.mu.Unlock()
		slog.Debug("call: start ignored, already active", "screen", m.screen)
		return
	}
	m.starting = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}()

	st := m.state
	st.SetLoading(true)
	defer st.SetLoading(false)
	st.SetConversationStarted(true)

	language := st.Language()
	began := time.Now()
	conv, err := m.api.CreateConversation(ctx, videocall.CreateRequest{
		ReplicaID:        m.replicaID,
		PersonaID:        m.personaID,
		ConversationName: fmt.Sprintf("%s-%d", m.avatarName, time.Now().Unix()),
		Context:          m.conversationContext(),
		Greeting:         m.greeting(),
		Language:         locale.DisplayName(language),
	})
	m.metrics.CallSetupDuration.Record(ctx, time.Since(began).Seconds())
	if err != nil || conv.ID == "" || conv.URL == "" {
		if err == nil {
			err = errors.New("conversation response missing id or url")
		}
		slog.Error("call: conversation creation failed", "err", err)
		st.SetConversationStarted(false)
		return
	}

	channel, err := m.dialer.OpenSignalChannel(ctx, conv)
	if err != nil {
		slog.Error("call: signal channel dial failed", "conversation_id", conv.ID, "err", err)
		if endErr := m.api.EndConversation(ctx, conv.ID); endErr != nil {
			slog.Warn("call: cleanup after dial failure", "err", endErr)
		}
		st.SetConversationStarted(false)
		return
	}

	m.mu.Lock()
	m.conv = conv
	m.callLanguage = language
	m.channel = channel
	m.screen = ScreenHairCheck
	m.mu.Unlock()

	m.metrics.ActiveCalls.Add(ctx, 1)
	slog.Info("call: conversation staged",
		"conversation_id", conv.ID, "language", language)
}

// Join moves from the hair-check screen into the call. It is a pure state
// transition; the conversation and signal channel were set up by Start.
func (m *Manager) Join() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screen != ScreenHairCheck || m.conv.ID == "" {
		return ErrNoCall
	}
	if !m.cameraReady || !m.micReady {
		return ErrHairCheckPending
	}
	m.screen = ScreenCall
	m.joined = true
	return nil
}

// End tears the call down: best-effort conversation end on the backend,
// signal channel close, and a return to the welcome screen. Idempotent.
func (m *Manager) End(ctx context.Context) {
	m.mu.Lock()
	conv := m.conv
	channel := m.channel
	active := conv.ID != ""
	m.conv = videocall.Conversation{}
	m.callLanguage = ""
	m.channel = nil
	m.screen = ScreenWelcome
	m.joined = false
	m.cameraReady = false
	m.micReady = false
	m.mu.Unlock()

	if !active {
		return
	}

	if channel != nil {
		if err := channel.Close(); err != nil {
			slog.Warn("call: signal channel close", "err", err)
		}
	}
	if err := m.api.EndConversation(ctx, conv.ID); err != nil {
		slog.Warn("call: end conversation", "conversation_id", conv.ID, "err", err)
	}

	m.metrics.ActiveCalls.Add(ctx, -1)
	m.state.SetConversationStarted(false)
	slog.Info("call: conversation ended", "conversation_id", conv.ID)
}

// HandleEvent reacts to one session event. The orchestrator's dispatch loop
// calls this for every published event; reactions only fire in the states
// their trigger conditions name.
func (m *Manager) HandleEvent(ctx context.Context, ev session.Event) {
	switch ev.Kind {
	case session.EventScriptChanged:
		m.relayScript(ctx, ev.Text)

	case session.EventInterruptRaised:
		m.relayInterrupt(ctx)

	case session.EventLanguageChanged:
		m.onLanguageChanged(ctx, ev.Text)
	}
}

// relayScript sends a sanitized echo event when the participant is joined.
// Speaking a new script implicitly cancels any pending interrupt, so the
// interrupt flag is cleared right after the send.
func (m *Manager) relayScript(ctx context.Context, script string) {
	m.mu.Lock()
	joined := m.joined
	conv := m.conv
	channel := m.channel
	m.mu.Unlock()
	if !joined || channel == nil {
		return
	}

	text := Sanitize(script)
	if text != "" {
		if err := channel.SendEcho(ctx, conv.ID, text); err != nil {
			slog.Warn("call: echo send failed", "conversation_id", conv.ID, "err", err)
		} else {
			m.metrics.EchoEvents.Add(ctx, 1)
		}
	}
	m.state.ClearInterrupt()
}

// relayInterrupt forwards an interrupt request into the call.
func (m *Manager) relayInterrupt(ctx context.Context) {
	m.mu.Lock()
	joined := m.joined
	conv := m.conv
	channel := m.channel
	m.mu.Unlock()
	if !joined || channel == nil {
		return
	}

	if err := channel.SendInterrupt(ctx, conv.ID); err != nil {
		slog.Warn("call: interrupt send failed", "conversation_id", conv.ID, "err", err)
		return
	}
	m.metrics.InterruptEvents.Add(ctx, 1)
}

// onLanguageChanged ends the call when the display language moves away from
// the language the conversation was created in. Conversations are not
// language-migratable mid-flight.
func (m *Manager) onLanguageChanged(ctx context.Context, lang string) {
	m.mu.Lock()
	active := m.conv.ID != ""
	callLanguage := m.callLanguage
	m.mu.Unlock()
	if !active || strings.EqualFold(lang, callLanguage) {
		return
	}

	slog.Info("call: language changed mid-call, ending",
		"call_language", callLanguage, "new_language", lang)
	m.End(ctx)
}

// conversationContext renders the chat so far as the avatar's priming
// context, one "User:"/"Assistant:" line per message.
func (m *Manager) conversationContext() string {
	msgs := m.state.Messages()
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, msg := range msgs {
		label := "User"
		if msg.Sender == session.SenderAI {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, msg.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// greeting prefers the latest assistant message, falling back to the
// configured welcome message.
func (m *Manager) greeting() string {
	msgs := m.state.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == session.SenderAI && msgs[i].Text != "" {
			return msgs[i].Text
		}
	}
	return m.welcomeMessage
}
