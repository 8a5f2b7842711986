package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// supportedLanguages lists the language codes the localization layer ships
// translations for. Used by [Validate] to warn about unsupported defaults.
var supportedLanguages = []string{"en", "es", "fr", "de"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Missing optional service credentials are warnings, not errors: the
// affected feature is skipped at runtime instead of failing the host.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Assistant backend is the one hard requirement: without it there are
	// no completions, no history, and no avatar directory.
	if cfg.Assistant.BaseURL == "" {
		errs = append(errs, errors.New("assistant.base_url is required"))
	}

	// Speech credentials — voice mode without them is a feature skip.
	if cfg.Widget.VoiceMode && (cfg.Speech.Key == "" || cfg.Speech.Region == "") {
		slog.Warn("widget.voice_mode is enabled but speech credentials are incomplete; the microphone will be inert")
	}

	// Translator credentials — partial credentials are almost certainly a
	// mistake, complete absence is a deliberate feature skip.
	if !cfg.Translator.Configured() {
		if cfg.Translator.Key != "" || cfg.Translator.Endpoint != "" || cfg.Translator.Region != "" {
			slog.Warn("translator credentials are incomplete; UI strings will not be translated",
				"key_set", cfg.Translator.Key != "",
				"endpoint_set", cfg.Translator.Endpoint != "",
				"region_set", cfg.Translator.Region != "",
			)
		}
	}

	// Video credentials
	if cfg.Video.APIKey == "" {
		slog.Warn("video.api_key is empty; video calls will not be available")
	}

	// Widget
	if lang := cfg.Widget.DefaultLanguage; lang != "" && !slices.Contains(supportedLanguages, lang) {
		errs = append(errs, fmt.Errorf("widget.default_language %q is unsupported; valid values: en, es, fr, de", lang))
	}

	return errors.Join(errs...)
}
