package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WidgetChanged is true if any widget presentation field changed
	// (brand, persona, welcome message, default language, voice mode,
	// or the avatar allowlist).
	WidgetChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Widget presentation
	if old.Widget.BrandName != new.Widget.BrandName ||
		old.Widget.PersonaName != new.Widget.PersonaName ||
		old.Widget.WelcomeMessage != new.Widget.WelcomeMessage ||
		old.Widget.DefaultLanguage != new.Widget.DefaultLanguage ||
		old.Widget.VoiceMode != new.Widget.VoiceMode ||
		!slices.Equal(old.Widget.AvatarAllowlist, new.Widget.AvatarAllowlist) {
		d.WidgetChanged = true
	}

	return d
}
