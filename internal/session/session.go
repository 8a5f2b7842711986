// Package session owns the shared conversation state of one mounted
// concierge instance: the message log, the cross-cutting voice signals
// (current script, interrupt flag, spoken text), loading and affordance
// flags, and the active language.
//
// All mutation goes through [State] methods, which serialise access and
// publish edge-triggered [Event]s to subscribers. Each cross-cutting field
// has exactly one writer component; any number of components may subscribe.
// There is no polling anywhere — every reaction in the system hangs off one
// of these events.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender identifies which side of the conversation authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Mode is the current interaction mode of the widget. It is derived state:
// voice exactly while a video call conversation is active.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeVoice Mode = "voice"
)

// Message is a single chat log entry. Immutable once appended.
type Message struct {
	ID        string
	Sender    Sender
	Text      string
	Timestamp time.Time
}

// NewMessage builds a Message with a fresh unique ID and the current time.
func NewMessage(sender Sender, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// File is an uploaded attachment queued for the next chat turn. At most one
// file is retained at a time: a new upload replaces the previous one.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Flags are the UI affordance toggles derived from assistant replies.
type Flags struct {
	// ShowContinue gates the "Continue" button.
	ShowContinue bool

	// InterviewCompleted gates the sign-up / advisor hand-off affordance.
	InterviewCompleted bool

	// ShowBuyNow gates the purchase affordance.
	ShowBuyNow bool

	// ShowRetry gates the retry banner after a failed turn.
	ShowRetry bool
}

// EventKind discriminates the edge-triggered events published by [State].
type EventKind string

const (
	// EventMessageAppended fires for every message added to the chat log.
	EventMessageAppended EventKind = "message_appended"

	// EventScriptChanged fires when a new assistant script is available for
	// the avatar to speak. Carries the script text.
	EventScriptChanged EventKind = "script_changed"

	// EventInterruptRaised fires when a component requests that the avatar
	// stop speaking. The consumer must clear the flag after relaying it.
	EventInterruptRaised EventKind = "interrupt_raised"

	// EventSpokenText fires when a recognised utterance is published.
	// Carries the utterance text.
	EventSpokenText EventKind = "spoken_text"

	// EventLoadingChanged fires when a completion request starts or ends.
	EventLoadingChanged EventKind = "loading_changed"

	// EventLanguageChanged fires when the display language switches.
	// Carries the new ISO code.
	EventLanguageChanged EventKind = "language_changed"

	// EventFlagsChanged fires when any affordance flag flips.
	EventFlagsChanged EventKind = "flags_changed"

	// EventCallChanged fires when the call conversation starts or ends,
	// which is also when the derived interaction mode flips.
	EventCallChanged EventKind = "call_changed"

	// EventSessionReset fires when the conversation is reset (e.g. on a
	// language change): session id, chat log, and call state are cleared.
	EventSessionReset EventKind = "session_reset"
)

// Event is a single state-change notification. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind EventKind

	// Message is set for EventMessageAppended.
	Message Message

	// Text carries the script, utterance, or language code.
	Text string

	// Loading is set for EventLoadingChanged.
	Loading bool

	// CallActive is set for EventCallChanged.
	CallActive bool

	// Flags is set for EventFlagsChanged.
	Flags Flags
}

// Snapshot is a point-in-time copy of the observable session state, for
// hosts that render from polling rather than events.
type Snapshot struct {
	SessionID           string
	Messages            []Message
	Mode                Mode
	Script              string
	Loading             bool
	Speaking            bool
	Language            string
	Flags               Flags
	ConversationStarted bool
}

// State holds the shared session state of one widget instance.
// All methods are safe for concurrent use.
type State struct {
	mu sync.RWMutex

	sessionID           string
	chatLog             []Message
	currentScript       string
	interruptReplica    bool
	spokenText          string
	loading             bool
	speaking            bool
	language            string
	flags               Flags
	conversationStarted bool
	uploadedFile        *File

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// New creates a State with the given initial language.
func New(language string) *State {
	return &State{
		language: language,
		subs:     make(map[int]chan Event),
	}
}

// Subscribe registers a new event subscriber and returns its channel together
// with an unsubscribe function. The channel is buffered; if a subscriber
// falls far enough behind that the buffer fills, events are dropped with a
// warning rather than blocking state mutation.
func (s *State) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, 64)
	s.subs[id] = ch

	unsubscribe := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// publish fans an event out to all subscribers without blocking.
func (s *State) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("session: subscriber buffer full, dropping event",
				"subscriber", id, "kind", ev.Kind)
		}
	}
}

// ─── Chat log ─────────────────────────────────────────────────────────────────

// AppendMessage adds a message to the chat log. The log is append-only; only
// [State.Reset] clears it.
func (s *State) AppendMessage(m Message) {
	s.mu.Lock()
	s.chatLog = append(s.chatLog, m)
	s.mu.Unlock()
	s.publish(Event{Kind: EventMessageAppended, Message: m})
}

// Messages returns a copy of the chat log in insertion order.
func (s *State) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.chatLog))
	copy(out, s.chatLog)
	return out
}

// ─── Session identity ─────────────────────────────────────────────────────────

// AdoptSessionID stores the backend-assigned session id if none is set yet.
// The id is sticky: once non-empty it is never overwritten, only cleared by
// [State.Reset]. Reports whether the id was adopted.
func (s *State) AdoptSessionID(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != "" {
		return false
	}
	s.sessionID = id
	return true
}

// SessionID returns the current backend session id, or "" before the first
// successful turn.
func (s *State) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Reset clears the logical conversation: session id, chat log, affordance
// flags, and the conversation-started marker. The current script and
// language are left untouched.
func (s *State) Reset() {
	s.mu.Lock()
	s.sessionID = ""
	s.chatLog = nil
	s.flags = Flags{}
	s.conversationStarted = false
	s.mu.Unlock()
	s.publish(Event{Kind: EventSessionReset})
}

// ─── Loading ──────────────────────────────────────────────────────────────────

// SetLoading flips the in-flight completion marker.
func (s *State) SetLoading(v bool) {
	s.mu.Lock()
	changed := s.loading != v
	s.loading = v
	s.mu.Unlock()
	if changed {
		s.publish(Event{Kind: EventLoadingChanged, Loading: v})
	}
}

// Loading reports whether a completion request is in flight.
func (s *State) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// ─── Script and interrupt ─────────────────────────────────────────────────────

// SetScript stores the latest assistant text destined for the avatar and
// publishes EventScriptChanged. Setting the same script twice is a no-op:
// the signal is edge-triggered on change.
func (s *State) SetScript(text string) {
	s.mu.Lock()
	if s.currentScript == text {
		s.mu.Unlock()
		return
	}
	s.currentScript = text
	s.mu.Unlock()
	s.publish(Event{Kind: EventScriptChanged, Text: text})
}

// Script returns the latest assistant script.
func (s *State) Script() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentScript
}

// RaiseInterrupt requests that the avatar stop speaking. Edge-triggered: a
// raise while the flag is already up is a no-op. The relaying component must
// call [State.ClearInterrupt] after observing it.
func (s *State) RaiseInterrupt() {
	s.mu.Lock()
	if s.interruptReplica {
		s.mu.Unlock()
		return
	}
	s.interruptReplica = true
	s.mu.Unlock()
	s.publish(Event{Kind: EventInterruptRaised})
}

// ClearInterrupt drives the interrupt flag back down.
func (s *State) ClearInterrupt() {
	s.mu.Lock()
	s.interruptReplica = false
	s.mu.Unlock()
}

// InterruptPending reports whether an interrupt request is awaiting relay.
func (s *State) InterruptPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interruptReplica
}

// ─── Spoken text ──────────────────────────────────────────────────────────────

// PublishSpokenText stores a recognised utterance and announces it. The
// orchestrator consumes it as if it were typed input.
func (s *State) PublishSpokenText(text string) {
	s.mu.Lock()
	s.spokenText = text
	s.mu.Unlock()
	s.publish(Event{Kind: EventSpokenText, Text: text})
}

// ConsumeSpokenText returns the pending utterance and clears it.
func (s *State) ConsumeSpokenText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.spokenText
	s.spokenText = ""
	return text
}

// LastSpokenText returns the most recent recognised utterance without
// clearing it. Used by the chat controller's voice-input heuristic.
func (s *State) LastSpokenText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spokenText
}

// SetSpeaking flips the "microphone live" indicator.
func (s *State) SetSpeaking(v bool) {
	s.mu.Lock()
	s.speaking = v
	s.mu.Unlock()
}

// Speaking reports whether a recognition session is live.
func (s *State) Speaking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaking
}

// ─── Language ─────────────────────────────────────────────────────────────────

// SetLanguage switches the display language. Publishes EventLanguageChanged
// only on an actual change.
func (s *State) SetLanguage(lang string) {
	s.mu.Lock()
	if s.language == lang {
		s.mu.Unlock()
		return
	}
	s.language = lang
	s.mu.Unlock()
	s.publish(Event{Kind: EventLanguageChanged, Text: lang})
}

// Language returns the active ISO language code.
func (s *State) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// ─── Call state ───────────────────────────────────────────────────────────────

// SetConversationStarted records whether a video call conversation is live.
// This drives the derived interaction mode.
func (s *State) SetConversationStarted(v bool) {
	s.mu.Lock()
	changed := s.conversationStarted != v
	s.conversationStarted = v
	s.mu.Unlock()
	if changed {
		s.publish(Event{Kind: EventCallChanged, CallActive: v})
	}
}

// ConversationStarted reports whether a call conversation is live.
func (s *State) ConversationStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationStarted
}

// Mode returns the derived interaction mode: voice iff a call is active.
func (s *State) Mode() Mode {
	if s.ConversationStarted() {
		return ModeVoice
	}
	return ModeChat
}

// ─── Affordance flags ─────────────────────────────────────────────────────────

// UpdateFlags applies fn to the affordance flags under lock and publishes
// EventFlagsChanged when the result differs.
func (s *State) UpdateFlags(fn func(*Flags)) {
	s.mu.Lock()
	before := s.flags
	fn(&s.flags)
	after := s.flags
	s.mu.Unlock()
	if before != after {
		s.publish(Event{Kind: EventFlagsChanged, Flags: after})
	}
}

// CurrentFlags returns a copy of the affordance flags.
func (s *State) CurrentFlags() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// ─── Uploaded file ────────────────────────────────────────────────────────────

// SetUploadedFile queues a file for the next turn, replacing any previous
// one.
func (s *State) SetUploadedFile(f File) {
	s.mu.Lock()
	s.uploadedFile = &f
	s.mu.Unlock()
}

// TakeUploadedFile returns the queued file (or nil) and clears it.
func (s *State) TakeUploadedFile() *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.uploadedFile
	s.uploadedFile = nil
	return f
}

// UploadedFile returns the queued file without clearing it, or nil.
func (s *State) UploadedFile() *File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploadedFile
}

// ─── Snapshot ─────────────────────────────────────────────────────────────────

// Snapshot returns a point-in-time copy of the observable state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]Message, len(s.chatLog))
	copy(msgs, s.chatLog)

	mode := ModeChat
	if s.conversationStarted {
		mode = ModeVoice
	}

	return Snapshot{
		SessionID:           s.sessionID,
		Messages:            msgs,
		Mode:                mode,
		Script:              s.currentScript,
		Loading:             s.loading,
		Speaking:            s.speaking,
		Language:            s.language,
		Flags:               s.flags,
		ConversationStarted: s.conversationStarted,
	}
}
