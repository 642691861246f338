// Package config provides the configuration schema and loader for the
// reservation phone agent. Settings come from a YAML file and may be
// overridden per knob by environment variables, which is how tuning
// parameters are adjusted in deployment without shipping a new file.
package config

import "github.com/kaiwa-ai/uketsuke/internal/session"

// LogLevel controls log verbosity for the server.
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

// Config is the root configuration structure, typically loaded from a
// YAML file with [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
	Turn      TurnConfig      `yaml:"turn"`
	Modes     ModesConfig     `yaml:"modes"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig configures the speech and language vendors.
type ProvidersConfig struct {
	LLM LLMConfig `yaml:"llm"`
	ASR ASRConfig `yaml:"asr"`
	TTS TTSConfig `yaml:"tts"`
}

// LLMConfig configures the chat-completion backend used for intent
// classification and, in llm slot-filling mode, slot extraction.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`

	// TimeoutSec bounds one completion call. Default 5.
	TimeoutSec int `yaml:"timeout_sec"`
}

// ASRConfig configures the streaming speech recognizer.
type ASRConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	// Endpoint overrides the recognizer's default websocket endpoint.
	Endpoint string `yaml:"endpoint"`

	// Language is the BCP 47 recognition language. Default "ja-JP".
	Language string `yaml:"language"`

	// Keywords bias recognition toward domain vocabulary.
	Keywords []string `yaml:"keywords"`
}

// TTSConfig configures the speech synthesizer.
type TTSConfig struct {
	APIKey string `yaml:"api_key"`
	Region string `yaml:"region"`

	// Voice is the synthesis voice name; empty uses the provider default.
	Voice string `yaml:"voice"`

	// Style is the speaking style; empty uses the provider default.
	Style string `yaml:"style"`

	// Rate adjusts the speaking rate, e.g. "+10%".
	Rate string `yaml:"rate"`
}

// DialogueConfig selects the conversation pattern.
type DialogueConfig struct {
	// PatternDir holds the JSON pattern files loaded at startup.
	PatternDir string `yaml:"pattern_dir"`

	// PatternIndex selects which loaded pattern to run. Default 0.
	PatternIndex int `yaml:"pattern_index"`
}

// TurnConfig holds the turn-taking tuning knobs. Zero values fall back
// to the session defaults.
type TurnConfig struct {
	// VolumeThreshold is the mean absolute PCM amplitude above which a
	// 20ms chunk counts as speech.
	VolumeThreshold int `yaml:"volume_threshold"`

	// FastEndChunks is the silent-chunk count for the fast end-of-speech
	// signal.
	FastEndChunks int `yaml:"fast_end_chunks"`

	// SlowEndChunks is the silent-chunk count for the slow end-of-speech
	// signal.
	SlowEndChunks int `yaml:"slow_end_chunks"`

	// BargeInChunks is the speech-chunk count required before the caller
	// may interrupt the bot.
	BargeInChunks int `yaml:"barge_in_chunks"`

	// StabilityThreshold is the minimum recognizer stability for a final
	// transcript to end the turn in asr-stability mode.
	StabilityThreshold float64 `yaml:"stability_threshold"`

	// Backchannel enables short acknowledgements while the caller is
	// still mid-turn.
	Backchannel bool `yaml:"backchannel"`
}

// ModesConfig selects the pipeline variants. Empty fields use the
// production defaults.
type ModesConfig struct {
	TurnTaking  string `yaml:"turn_taking"`
	SlotFilling string `yaml:"slot_filling"`
	BargeIn     string `yaml:"barge_in"`
}

// SessionModes converts the configured mode names into the session
// variant struct.
func (m ModesConfig) SessionModes() session.Modes {
	modes := session.DefaultModes()
	if m.TurnTaking != "" {
		modes.TurnTaking = session.TurnTakingMode(m.TurnTaking)
	}
	if m.SlotFilling != "" {
		modes.SlotFilling = session.SlotFillingMode(m.SlotFilling)
	}
	if m.BargeIn != "" {
		modes.BargeIn = session.BargeInMode(m.BargeIn)
	}
	return modes
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// PostgresDSN is the connection string for the conversation log
	// store. Empty keeps logs in memory only.
	PostgresDSN string `yaml:"postgres_dsn"`

	// CacheDir holds pre-synthesized WAV files keyed by utterance label.
	CacheDir string `yaml:"cache_dir"`
}
