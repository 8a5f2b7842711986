// Package concierge wires all widget subsystems into one embeddable
// instance.
//
// The Concierge struct owns the full lifecycle: New selects the avatar,
// connects the chat controller, call manager, speech adapter, and locale
// coordinator to one shared session state, and starts the event dispatch
// loop. Hosts drive it through the exported methods and observe it through
// [Concierge.Events] or [Concierge.Snapshot]; Close tears everything down.
//
// For testing, inject mock implementations via the [Providers] struct.
package concierge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/real-business/concierge/internal/call"
	"github.com/real-business/concierge/internal/chat"
	"github.com/real-business/concierge/internal/config"
	"github.com/real-business/concierge/internal/locale"
	"github.com/real-business/concierge/internal/observe"
	"github.com/real-business/concierge/internal/session"
	speechadapter "github.com/real-business/concierge/internal/speech"
	"github.com/real-business/concierge/pkg/provider/chatapi"
	"github.com/real-business/concierge/pkg/provider/directory"
	speechprovider "github.com/real-business/concierge/pkg/provider/speech"
	"github.com/real-business/concierge/pkg/provider/translate"
	"github.com/real-business/concierge/pkg/provider/videocall"
)

// Fallback avatar identity used when the directory yields no allowlisted
// profile and the host config leaves the video identity empty.
const (
	defaultReplicaID = "r82081c7f26d"
	defaultPersonaID = "pc9cb547c05e"
)

// defaultAvatarAllowlist is the external id filter applied to the avatar
// directory when the host config does not supply its own.
var defaultAvatarAllowlist = []string{"r397c808f1cf"}

// ErrBusy is returned when a turn is submitted while another is in flight.
var ErrBusy = errors.New("concierge: a turn is already in flight")

// Providers holds one interface value per collaborator slot. Chat is
// required; every other slot may be nil, which disables the corresponding
// feature. Populated by main.go from the config, or with mocks in tests.
type Providers struct {
	Chat       chatapi.Client
	Video      videocall.API
	Signal     videocall.SignalDialer
	Speech     speechprovider.Recognizer
	Translator translate.Translator
	Directory  directory.Client
	History    chat.HistoryRecorder
	Training   chat.TrainingRecorder
}

// Concierge is one mounted widget instance.
// All exported methods are safe for concurrent use.
type Concierge struct {
	state   *session.State
	chat    *chat.Controller
	call    *call.Manager
	speech  *speechadapter.Adapter
	locale  *locale.Coordinator
	metrics *observe.Metrics

	avatar       directory.AvatarProfile
	videoEnabled bool

	events      <-chan session.Event
	unsubscribe func()
	cancel      context.CancelFunc
	group       *errgroup.Group
	closeOnce   sync.Once
}

// New wires a Concierge from the host config and providers. The avatar is
// selected from the directory during construction; directory failures fall
// back to the configured (or default) identity rather than failing New.
// The event dispatch loop starts immediately.
func New(ctx context.Context, cfg *config.Config, providers *Providers) (*Concierge, error) {
	if providers == nil || providers.Chat == nil {
		return nil, errors.New("concierge: a completion client is required")
	}

	lang := cfg.Widget.DefaultLanguage
	if lang == "" {
		lang = locale.DefaultCode
	}
	state := session.New(lang)
	metrics := observe.DefaultMetrics()

	avatar := selectAvatar(ctx, providers.Directory, cfg.Widget.AvatarAllowlist)
	if avatar.Name == "" {
		avatar.Name = cfg.Widget.PersonaName
	}

	replicaID := avatar.ExternalID
	if replicaID == "" {
		replicaID = cfg.Video.ReplicaID
	}
	if replicaID == "" {
		replicaID = defaultReplicaID
	}
	personaID := cfg.Video.PersonaID
	if personaID == "" {
		personaID = defaultPersonaID
	}

	c := &Concierge{
		state:        state,
		metrics:      metrics,
		avatar:       avatar,
		videoEnabled: providers.Video != nil && providers.Signal != nil,
	}

	c.locale = locale.NewCoordinator(locale.Config{
		State:       state,
		Translator:  providers.Translator,
		Metrics:     metrics,
		BrandName:   cfg.Widget.BrandName,
		PersonaName: cfg.Widget.PersonaName,
	})

	c.chat = chat.NewController(chat.Config{
		State:       state,
		Client:      providers.Chat,
		History:     providers.History,
		Training:    providers.Training,
		Metrics:     metrics,
		UserID:      cfg.Assistant.UserID,
		PersonaName: cfg.Widget.PersonaName,
		BrandName:   cfg.Widget.BrandName,
	})

	c.call = call.NewManager(call.Config{
		State:          state,
		API:            providers.Video,
		Dialer:         providers.Signal,
		Metrics:        metrics,
		ReplicaID:      replicaID,
		PersonaID:      personaID,
		AvatarName:     avatar.Name,
		WelcomeMessage: cfg.Widget.WelcomeMessage,
	})

	c.speech = speechadapter.NewAdapter(speechadapter.Config{
		State:      state,
		Recognizer: providers.Speech,
		Metrics:    metrics,
		Enabled:    cfg.Widget.VoiceMode && providers.Speech != nil,
	})

	// A non-default mount language needs its bundle translated before the
	// first render.
	if lang != locale.DefaultCode {
		c.locale.SetLanguage(ctx, lang)
	}

	c.events, c.unsubscribe = state.Subscribe()

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.group = &errgroup.Group{}
	c.group.Go(func() error {
		c.dispatch(runCtx)
		return nil
	})

	return c, nil
}

// selectAvatar lists the directory and keeps the first allowlisted profile.
// Any failure or an empty selection returns the zero profile; the caller
// falls back to the configured identity.
func selectAvatar(ctx context.Context, dir directory.Client, allowlist []string) directory.AvatarProfile {
	if dir == nil {
		return directory.AvatarProfile{}
	}
	if len(allowlist) == 0 {
		allowlist = defaultAvatarAllowlist
	}
	profiles, err := dir.ListAvatars(ctx)
	if err != nil {
		slog.Warn("concierge: avatar directory unavailable, using fallback identity", "err", err)
		return directory.AvatarProfile{}
	}
	selected := directory.SelectByExternalID(profiles, allowlist)
	if len(selected) == 0 {
		slog.Warn("concierge: no allowlisted avatar in directory, using fallback identity",
			"profiles", len(profiles))
		return directory.AvatarProfile{}
	}
	return selected[0]
}

// ─── Event dispatch ───────────────────────────────────────────────────────────

// dispatch is the single reaction loop: every cross-component hand-off in
// the system flows through here, one event at a time.
func (c *Concierge) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.handleEvent(ctx, ev)
		}
	}
}

// handleEvent routes one session event to the interested components.
func (c *Concierge) handleEvent(ctx context.Context, ev session.Event) {
	switch ev.Kind {
	case session.EventSpokenText:
		c.handleSpokenText(ctx, ev.Text)

	case session.EventCallChanged:
		// A call ending takes the microphone with it.
		if !ev.CallActive {
			c.speech.SetActive(ctx, false)
		}

	default:
		// Script, interrupt, and language events drive the call lifecycle.
		c.call.HandleEvent(ctx, ev)
	}
}

// handleSpokenText submits a recognised utterance as a chat turn. The
// pending utterance is consumed only after the turn returns, so the
// controller's voice-input heuristic still sees it.
func (c *Concierge) handleSpokenText(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if c.state.Loading() {
		slog.Warn("concierge: dropping utterance, a turn is already in flight", "text", text)
		c.state.ConsumeSpokenText()
		return
	}
	c.chat.SubmitTurn(ctx, text)
	c.state.ConsumeSpokenText()
}

// ─── Chat surface ─────────────────────────────────────────────────────────────

// Open issues the welcome turn that produces the first assistant greeting.
// Call it once after New, and again after a language switch if the host
// wants a fresh greeting without waiting for user input.
func (c *Concierge) Open(ctx context.Context) {
	c.chat.OpenConversation(ctx, c.avatar.Name)
}

// SubmitTurn submits typed user input as one conversation turn. Returns
// [ErrBusy] while another turn is in flight.
func (c *Concierge) SubmitTurn(ctx context.Context, input string) error {
	if c.state.Loading() {
		return ErrBusy
	}
	c.chat.SubmitTurn(ctx, input)
	return nil
}

// Continue submits the turn behind the "Continue" affordance. Returns
// [ErrBusy] while another turn is in flight.
func (c *Concierge) Continue(ctx context.Context) error {
	if c.state.Loading() {
		return ErrBusy
	}
	c.chat.SubmitContinue(ctx)
	return nil
}

// Retry resubmits the last failed input, if any.
func (c *Concierge) Retry(ctx context.Context) error {
	if c.state.Loading() {
		return ErrBusy
	}
	c.chat.Retry(ctx)
	return nil
}

// UploadFile queues a file for the next turn, replacing any queued one.
func (c *Concierge) UploadFile(f session.File) {
	c.state.SetUploadedFile(f)
}

// Feedback records a thumbs-up/down for the message with the given id.
func (c *Concierge) Feedback(ctx context.Context, messageID string, kind chat.FeedbackKind) error {
	for _, m := range c.state.Messages() {
		if m.ID == messageID {
			c.chat.RecordFeedback(ctx, m, kind)
			return nil
		}
	}
	return fmt.Errorf("concierge: no message with id %q", messageID)
}

// ─── Call surface ─────────────────────────────────────────────────────────────

// StartCall stages a video call conversation and moves to the hair-check
// screen. Failures are written into the session state. A no-op when the
// host supplied no video backend.
func (c *Concierge) StartCall(ctx context.Context) {
	if !c.videoEnabled {
		slog.Warn("concierge: video call requested but no video backend is configured")
		return
	}
	c.call.Start(ctx)
}

// SetDeviceState records the hair-check camera/microphone results.
func (c *Concierge) SetDeviceState(cameraReady, micReady bool) {
	c.call.SetDeviceState(cameraReady, micReady)
}

// JoinCall moves from the hair check into the live call.
func (c *Concierge) JoinCall() error {
	return c.call.Join()
}

// EndCall leaves the call and releases the conversation. Idempotent.
func (c *Concierge) EndCall(ctx context.Context) {
	c.call.End(ctx)
}

// Screen returns the current call UI screen.
func (c *Concierge) Screen() call.Screen {
	return c.call.Screen()
}

// ─── Speech surface ───────────────────────────────────────────────────────────

// SetMicActive opens or closes the push-to-talk recognition session. A no-op
// when voice mode is disabled.
func (c *Concierge) SetMicActive(ctx context.Context, on bool) {
	c.speech.SetActive(ctx, on)
}

// SendAudio forwards one audio chunk to the live recognition session.
func (c *Concierge) SendAudio(chunk []byte) error {
	return c.speech.SendAudio(chunk)
}

// ─── Locale surface ───────────────────────────────────────────────────────────

// SetLanguage switches the widget language. An actual switch resets the
// conversation and issues a fresh welcome turn in the new language.
func (c *Concierge) SetLanguage(ctx context.Context, lang string) {
	before := c.locale.CachedLanguage()
	c.locale.SetLanguage(ctx, lang)
	if c.locale.CachedLanguage() != before {
		c.Open(ctx)
	}
}

// Bundle returns the active UI-string bundle.
func (c *Concierge) Bundle() locale.Bundle {
	return c.locale.Bundle()
}

// ─── Observation ──────────────────────────────────────────────────────────────

// Avatar returns the directory profile the widget mounted with. The zero
// profile (plus the persona name) means the fallback identity is in use.
func (c *Concierge) Avatar() directory.AvatarProfile {
	return c.avatar
}

// Snapshot returns a point-in-time copy of the session state.
func (c *Concierge) Snapshot() session.Snapshot {
	return c.state.Snapshot()
}

// Events returns a fresh subscription to the session event stream and its
// unsubscribe function. Independent of the internal dispatch subscription.
func (c *Concierge) Events() (<-chan session.Event, func()) {
	return c.state.Subscribe()
}

// ─── Teardown ─────────────────────────────────────────────────────────────────

// Close stops the dispatch loop, closes the microphone, and ends any live
// call. Safe to call more than once.
func (c *Concierge) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.unsubscribe()
		c.speech.SetActive(ctx, false)
		c.call.End(ctx)
	})
	return c.group.Wait()
}
