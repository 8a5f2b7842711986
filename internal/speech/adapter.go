// Package speech implements the push-to-talk speech channel adapter: it
// bridges the shared session state and a streaming recognition backend.
// One activation captures one utterance.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/real-business/concierge/internal/observe"
	"github.com/real-business/concierge/internal/session"
	provider "github.com/real-business/concierge/pkg/provider/speech"
)

// localeByLanguage maps UI language codes onto recognition locales.
var localeByLanguage = map[string]string{
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
}

// defaultLocale is used when the active language has no mapping.
const defaultLocale = "en-US"

// Config holds all dependencies for an [Adapter].
type Config struct {
	State      *session.State
	Recognizer provider.Recognizer

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// Enabled is the voice-mode gate. When false the adapter is a no-op.
	Enabled bool
}

// Adapter owns the recognition session lifecycle for one widget instance.
// All exported methods are safe for concurrent use.
type Adapter struct {
	state      *session.State
	recognizer provider.Recognizer
	metrics    *observe.Metrics
	enabled    bool

	mu      sync.Mutex
	handle  provider.SessionHandle
	stopped chan struct{}
}

// NewAdapter creates an inactive Adapter.
func NewAdapter(cfg Config) *Adapter {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Adapter{
		state:      cfg.State,
		recognizer: cfg.Recognizer,
		metrics:    metrics,
		enabled:    cfg.Enabled,
	}
}

// Active reports whether a recognition session is open.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle != nil
}

// SetActive opens or tears down the recognition session. Edge-triggered:
// activating while active, or deactivating while inactive, is a no-op.
// Recognition failures never surface here; they are logged and deactivate
// the adapter.
func (a *Adapter) SetActive(ctx context.Context, on bool) {
	if !a.enabled {
		return
	}
	if on {
		a.activate(ctx)
		return
	}
	a.deactivate(nil)
}

func (a *Adapter) activate(ctx context.Context) {
	a.mu.Lock()
	if a.handle != nil {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	locale, ok := localeByLanguage[a.state.Language()]
	if !ok {
		locale = defaultLocale
	}

	handle, err := a.recognizer.StartSession(ctx, provider.SessionConfig{Locale: locale})
	if err != nil {
		slog.Error("speech: session start failed", "locale", locale, "err", err)
		return
	}

	a.mu.Lock()
	if a.handle != nil {
		// Lost the race with a concurrent activation.
		a.mu.Unlock()
		handle.Close()
		return
	}
	a.handle = handle
	stopped := make(chan struct{})
	a.stopped = stopped
	a.mu.Unlock()

	// Voice input always interrupts whatever the avatar is saying.
	a.state.SetSpeaking(true)
	a.state.RaiseInterrupt()
	a.metrics.ActiveRecognitionSessions.Add(ctx, 1)
	slog.Debug("speech: session started", "locale", locale)

	go a.listen(ctx, handle, stopped)
}

// SendAudio forwards one audio chunk to the live recognition session.
func (a *Adapter) SendAudio(chunk []byte) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	if handle == nil {
		return errors.New("speech: no recognition session open")
	}
	return handle.SendAudio(chunk)
}

// deactivate tears the current session down, if any. When expect is non-nil
// only that exact session is torn down, so a listener that lost a race with
// a fresh activation cannot close the new session.
func (a *Adapter) deactivate(expect provider.SessionHandle) {
	a.mu.Lock()
	if expect != nil && a.handle != expect {
		a.mu.Unlock()
		return
	}
	handle := a.handle
	stopped := a.stopped
	a.handle = nil
	a.stopped = nil
	a.mu.Unlock()
	if handle == nil {
		return
	}

	close(stopped)
	handle.Close()
	a.state.SetSpeaking(false)
	a.metrics.ActiveRecognitionSessions.Add(context.Background(), -1)
}

// listen consumes one utterance from the session. The first non-empty final
// transcript is published as spoken text and ends the activation.
func (a *Adapter) listen(ctx context.Context, handle provider.SessionHandle, stopped chan struct{}) {
	for {
		select {
		case <-stopped:
			return

		case t, ok := <-handle.Finals():
			if !ok {
				a.deactivate(handle)
				return
			}
			if t.Text == "" {
				continue
			}
			a.metrics.RecognizedUtterances.Add(ctx, 1)
			a.state.PublishSpokenText(t.Text)
			a.state.ClearInterrupt()
			a.deactivate(handle)
			return

		case ev, ok := <-handle.Events():
			if !ok {
				a.deactivate(handle)
				return
			}
			slog.Warn("speech: session ended by provider", "kind", ev.Kind, "reason", ev.Reason)
			a.deactivate(handle)
			return
		}
	}
}
