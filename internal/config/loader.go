package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kaiwa-ai/uketsuke/internal/session"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
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

// LoadFromReader decodes a YAML config from r, applies environment
// overrides, and validates the result. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg fields from the process environment. Unset
// variables leave the file values in place; malformed numeric values
// are ignored rather than crashing a running deployment.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Server.ListenAddr, "LISTEN_ADDR")

	setString(&cfg.Providers.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.LLM.Model, "LLM_MODEL")
	setInt(&cfg.Providers.LLM.TimeoutSec, "LLM_TIMEOUT_SEC")

	setString(&cfg.Providers.ASR.APIKey, "DEEPGRAM_API_KEY")
	setString(&cfg.Providers.ASR.Language, "LANGUAGE_CODE")

	setString(&cfg.Providers.TTS.APIKey, "AZURE_SPEECH_KEY")
	setString(&cfg.Providers.TTS.Region, "AZURE_SPEECH_REGION")
	setString(&cfg.Providers.TTS.Voice, "TTS_VOICE")
	setString(&cfg.Providers.TTS.Style, "TTS_STYLE")
	setString(&cfg.Providers.TTS.Rate, "TTS_RATE_PCT")

	setString(&cfg.Dialogue.PatternDir, "PATTERN_DIR")
	setInt(&cfg.Dialogue.PatternIndex, "PATTERN_INDEX")

	setInt(&cfg.Turn.VolumeThreshold, "VOLUME_THRESHOLD")
	setInt(&cfg.Turn.FastEndChunks, "FAST_SPEECH_END_THRESHOLD")
	setInt(&cfg.Turn.SlowEndChunks, "SLOW_SPEECH_END_THRESHOLD")
	setInt(&cfg.Turn.BargeInChunks, "BARGE_IN_THRESHOLD")
	setFloat(&cfg.Turn.StabilityThreshold, "ASR_STABILITY_THRESHOLD")

	setString(&cfg.Modes.TurnTaking, "TURN_TAKING_MODE")
	setString(&cfg.Modes.SlotFilling, "SLOT_FILLING_MODE")
	setString(&cfg.Modes.BargeIn, "BARGE_IN_MODE")

	setString(&cfg.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&cfg.Storage.CacheDir, "CACHE_DIR")
}

// Validate checks that cfg contains a coherent set of values. It
// returns a joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	switch session.TurnTakingMode(cfg.Modes.TurnTaking) {
	case "", session.TurnTakingASRStability, session.TurnTakingVolumeEOT:
	default:
		errs = append(errs, fmt.Errorf("modes.turn_taking %q is invalid; valid values: asr-stability, volume-eot", cfg.Modes.TurnTaking))
	}
	switch session.SlotFillingMode(cfg.Modes.SlotFilling) {
	case "", session.SlotFillingRule, session.SlotFillingLLM:
	default:
		errs = append(errs, fmt.Errorf("modes.slot_filling %q is invalid; valid values: rule, llm", cfg.Modes.SlotFilling))
	}
	switch session.BargeInMode(cfg.Modes.BargeIn) {
	case "", session.BargeInOff, session.BargeInConfirmationOnly:
	default:
		errs = append(errs, fmt.Errorf("modes.barge_in %q is invalid; valid values: off, confirmation-only", cfg.Modes.BargeIn))
	}

	if session.SlotFillingMode(cfg.Modes.SlotFilling) == session.SlotFillingLLM && cfg.Providers.LLM.APIKey == "" {
		errs = append(errs, errors.New("modes.slot_filling \"llm\" requires providers.llm.api_key"))
	}

	if cfg.Turn.VolumeThreshold < 0 {
		errs = append(errs, fmt.Errorf("turn.volume_threshold %d must not be negative", cfg.Turn.VolumeThreshold))
	}
	if cfg.Turn.FastEndChunks < 0 || cfg.Turn.SlowEndChunks < 0 {
		errs = append(errs, errors.New("turn.fast_end_chunks and turn.slow_end_chunks must not be negative"))
	}
	if cfg.Turn.FastEndChunks > 0 && cfg.Turn.SlowEndChunks > 0 && cfg.Turn.FastEndChunks >= cfg.Turn.SlowEndChunks {
		errs = append(errs, fmt.Errorf("turn.fast_end_chunks %d must be below turn.slow_end_chunks %d", cfg.Turn.FastEndChunks, cfg.Turn.SlowEndChunks))
	}
	if cfg.Turn.StabilityThreshold < 0 || cfg.Turn.StabilityThreshold > 1 {
		errs = append(errs, fmt.Errorf("turn.stability_threshold %.2f is out of range [0, 1]", cfg.Turn.StabilityThreshold))
	}

	if cfg.Dialogue.PatternIndex < 0 {
		errs = append(errs, fmt.Errorf("dialogue.pattern_index %d must not be negative", cfg.Dialogue.PatternIndex))
	}

	return errors.Join(errs...)
}

// SessionConfig assembles the per-call session configuration from the
// loaded settings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Modes:              c.Modes.SessionModes(),
		Language:           c.Providers.ASR.Language,
		Keywords:           c.Providers.ASR.Keywords,
		VolumeThreshold:    c.Turn.VolumeThreshold,
		FastEndChunks:      c.Turn.FastEndChunks,
		SlowEndChunks:      c.Turn.SlowEndChunks,
		BargeInChunks:      c.Turn.BargeInChunks,
		StabilityThreshold: c.Turn.StabilityThreshold,
		Backchannel:        c.Turn.Backchannel,
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setFloat(dst *float64, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}
