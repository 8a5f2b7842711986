// Package locale implements the localization coordinator: the fixed UI
// string bundle, the supported-language table, and the one-shot batched
// translation that runs on a language switch.
package locale

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/real-business/concierge/internal/observe"
	"github.com/real-business/concierge/internal/session"
	"github.com/real-business/concierge/pkg/provider/translate"
)

// Bundle is the fixed set of UI strings rendered by the host. The zero-value
// field order is stable; TranslateBatch output maps back positionally.
type Bundle struct {
	AvatarGreeting    string
	AvatarSubtitle    string
	InputPlaceholder  string
	SendButton        string
	ContinueButton    string
	RetryButton       string
	BuyNowButton      string
	SignUpButton      string
	UploadLabel       string
	MicTooltip        string
	CallButton        string
	JoinButton        string
	EndCallButton     string
	HowItWorksTitle   string
	HowItWorksStep1   string
	HowItWorksStep2   string
	HowItWorksStep3   string
	LoadingIndicator  string
	ConnectionWarning string
}

// DefaultBundle builds the untranslated English bundle from the configured
// brand and persona names.
func DefaultBundle(brandName, personaName string) Bundle {
	return Bundle{
		AvatarGreeting:    fmt.Sprintf("Hi, I'm your %s", personaName),
		AvatarSubtitle:    fmt.Sprintf("Powered by %s", brandName),
		InputPlaceholder:  "Type your message...",
		SendButton:        "Send",
		ContinueButton:    "Continue",
		RetryButton:       "Retry",
		BuyNowButton:      "Buy Now",
		SignUpButton:      "Sign Up",
		UploadLabel:       "Upload a file",
		MicTooltip:        "Hold to talk",
		CallButton:        "Start video call",
		JoinButton:        "Join call",
		EndCallButton:     "End call",
		HowItWorksTitle:   "How it works",
		HowItWorksStep1:   fmt.Sprintf("Tell %s a little about yourself.", personaName),
		HowItWorksStep2:   "Answer a few short questions at your own pace.",
		HowItWorksStep3:   fmt.Sprintf("Get a plan tailored to you by %s.", brandName),
		LoadingIndicator:  "Thinking...",
		ConnectionWarning: "Connection lost. Trying to reconnect...",
	}
}

// strings flattens the bundle in its positional order.
func (b Bundle) strings() []string {
	return []string{
		b.AvatarGreeting, b.AvatarSubtitle, b.InputPlaceholder, b.SendButton,
		b.ContinueButton, b.RetryButton, b.BuyNowButton, b.SignUpButton,
		b.UploadLabel, b.MicTooltip, b.CallButton, b.JoinButton,
		b.EndCallButton, b.HowItWorksTitle, b.HowItWorksStep1,
		b.HowItWorksStep2, b.HowItWorksStep3, b.LoadingIndicator,
		b.ConnectionWarning,
	}
}

// fromStrings rebuilds a bundle from the positional order of [Bundle.strings].
func fromStrings(s []string) Bundle {
	return Bundle{
		AvatarGreeting: s[0], AvatarSubtitle: s[1], InputPlaceholder: s[2],
		SendButton: s[3], ContinueButton: s[4], RetryButton: s[5],
		BuyNowButton: s[6], SignUpButton: s[7], UploadLabel: s[8],
		MicTooltip: s[9], CallButton: s[10], JoinButton: s[11],
		EndCallButton: s[12], HowItWorksTitle: s[13], HowItWorksStep1: s[14],
		HowItWorksStep2: s[15], HowItWorksStep3: s[16], LoadingIndicator: s[17],
		ConnectionWarning: s[18],
	}
}

// Config holds all dependencies for a [Coordinator].
type Config struct {
	State *session.State

	// Translator may be nil when the host supplied no translator credentials;
	// language switches then keep the default bundle.
	Translator translate.Translator

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// BrandName and PersonaName seed the default bundle.
	BrandName   string
	PersonaName string
}

// Coordinator owns the active UI-string bundle and drives language switches.
// All exported methods are safe for concurrent use.
type Coordinator struct {
	state      *session.State
	translator translate.Translator
	metrics    *observe.Metrics

	defaults Bundle

	mu     sync.Mutex
	bundle Bundle
	cached string
}

// NewCoordinator creates a Coordinator holding the default-language bundle.
func NewCoordinator(cfg Config) *Coordinator {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	defaults := DefaultBundle(cfg.BrandName, cfg.PersonaName)
	return &Coordinator{
		state:      cfg.State,
		translator: cfg.Translator,
		metrics:    metrics,
		defaults:   defaults,
		bundle:     defaults,
		cached:     DefaultCode,
	}
}

// Bundle returns the active UI-string bundle.
func (c *Coordinator) Bundle() Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bundle
}

// CachedLanguage returns the language the active bundle is in.
func (c *Coordinator) CachedLanguage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

// SetLanguage switches the widget to lang. A request matching the cached
// language is a no-op. Switching to the default language restores the
// hardcoded strings without a network call; any other language triggers one
// batched translation. Both directions reset the logical conversation and
// record the new language in the session state.
func (c *Coordinator) SetLanguage(ctx context.Context, lang string) {
	code, ok := Resolve(lang)
	if !ok {
		slog.Warn("locale: unsupported language requested", "language", lang)
		return
	}

	c.mu.Lock()
	if code == c.cached {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if code == DefaultCode {
		c.apply(code, c.defaults)
		return
	}

	if c.translator == nil {
		slog.Warn("locale: translator not configured, keeping default strings",
			"language", code)
		return
	}

	began := time.Now()
	texts, err := c.translator.TranslateBatch(ctx, c.defaults.strings(), DefaultCode, code)
	c.metrics.TranslationDuration.Record(ctx, time.Since(began).Seconds())
	if err != nil {
		// The translator hands the inputs back on failure, so the switch
		// still happens with untranslated strings.
		c.metrics.RecordTranslation(ctx, "error")
		slog.Error("locale: batch translation failed, using untranslated strings",
			"language", code, "err", err)
	} else {
		c.metrics.RecordTranslation(ctx, "ok")
	}

	c.apply(code, fromStrings(texts))
}

// apply atomically swaps the bundle, resets the logical conversation, and
// records the new language.
func (c *Coordinator) apply(code string, b Bundle) {
	c.mu.Lock()
	c.bundle = b
	c.cached = code
	c.mu.Unlock()

	c.state.Reset()
	c.state.SetLanguage(code)
	slog.Info("locale: language switched", "language", code)
}
