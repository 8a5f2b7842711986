// Package config provides the configuration schema, loader, and file watcher
// for the concierge host.
package config

// LogLevel controls log verbosity for the concierge host.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the concierge host.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Speech     SpeechConfig     `yaml:"speech"`
	Translator TranslatorConfig `yaml:"translator"`
	Video      VideoConfig      `yaml:"video"`
	Widget     WidgetConfig     `yaml:"widget"`
}

// ServerConfig holds network and logging settings for the host process.
type ServerConfig struct {
	// ListenAddr is the TCP address the health/metrics server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AssistantConfig points at the assistant backend that serves completions,
// chat history, training feedback, and the avatar directory.
type AssistantConfig struct {
	// BaseURL is the backend's API root (e.g., "https://api.example.com").
	BaseURL string `yaml:"base_url"`

	// UserID identifies the end user to the backend. Optional; the backend
	// client substitutes a default identity when empty.
	UserID string `yaml:"user_id"`

	// BusinessID scopes completions and training feedback to one tenant.
	BusinessID string `yaml:"business_id"`
}

// SpeechConfig holds the speech-recognition service credentials.
type SpeechConfig struct {
	// Key is the subscription key.
	Key string `yaml:"key"`

	// Region is the service region (e.g., "westeurope").
	Region string `yaml:"region"`
}

// TranslatorConfig holds the translator service credentials. All three
// fields must be present for UI-string translation; incomplete credentials
// disable the feature with a warning rather than failing the host.
type TranslatorConfig struct {
	Key      string `yaml:"key"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
}

// Configured reports whether every translator credential is present.
func (t TranslatorConfig) Configured() bool {
	return t.Key != "" && t.Endpoint != "" && t.Region != ""
}

// VideoConfig holds the video avatar backend credentials and avatar identity.
type VideoConfig struct {
	// APIKey authenticates against the video call backend.
	APIKey string `yaml:"api_key"`

	// ReplicaID selects the avatar's visual replica.
	ReplicaID string `yaml:"replica_id"`

	// PersonaID selects the avatar's persona.
	PersonaID string `yaml:"persona_id"`
}

// WidgetConfig holds the presentation and behaviour settings of the mounted
// widget.
type WidgetConfig struct {
	// BrandName appears in UI copy and the canned greeting.
	BrandName string `yaml:"brand_name"`

	// PersonaName is how the assistant introduces itself.
	PersonaName string `yaml:"persona_name"`

	// WelcomeMessage is the avatar greeting used before any assistant
	// message exists.
	WelcomeMessage string `yaml:"welcome_message"`

	// DefaultLanguage is the ISO code the widget mounts with. Defaults to "en".
	DefaultLanguage string `yaml:"default_language"`

	// VoiceMode gates the speech channel. When false the microphone is
	// inert regardless of other settings.
	VoiceMode bool `yaml:"voice_mode"`

	// AvatarAllowlist restricts the avatar directory to these external ids.
	AvatarAllowlist []string `yaml:"avatar_allowlist"`
}
