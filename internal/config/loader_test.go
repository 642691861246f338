package config_test

import (
	"strings"
	"testing"

	"github.com/kaiwa-ai/uketsuke/internal/config"
	"github.com/kaiwa-ai/uketsuke/internal/session"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    api_key: sk-test
    model: gpt-4o-mini
    timeout_sec: 5
  asr:
    api_key: dg-test
    language: ja-JP
    keywords: ["予約", "キャンセル"]
  tts:
    api_key: az-test
    region: japaneast
    voice: ja-JP-NanamiNeural
    rate: "+10%"
dialogue:
  pattern_dir: ./patterns
turn:
  volume_threshold: 1000
  fast_end_chunks: 20
  slow_end_chunks: 80
  barge_in_chunks: 20
  stability_threshold: 0.85
modes:
  turn_taking: asr-stability
  slot_filling: rule
  barge_in: confirmation-only
storage:
  postgres_dsn: ""
  cache_dir: /var/cache/uketsuke
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.ASR.Language != "ja-JP" {
		t.Errorf("language = %q", cfg.Providers.ASR.Language)
	}
	if got := len(cfg.Providers.ASR.Keywords); got != 2 {
		t.Errorf("keywords = %d entries", got)
	}
	if cfg.Turn.SlowEndChunks != 80 {
		t.Errorf("slow_end_chunks = %d", cfg.Turn.SlowEndChunks)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":8080\"\n"))
	if err == nil {
		t.Fatal("misspelled key accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOLUME_THRESHOLD", "2500")
	t.Setenv("TTS_VOICE", "ja-JP-KeitaNeural")
	t.Setenv("ASR_STABILITY_THRESHOLD", "0.9")
	t.Setenv("SLOT_FILLING_MODE", "llm")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Turn.VolumeThreshold != 2500 {
		t.Errorf("volume_threshold = %d", cfg.Turn.VolumeThreshold)
	}
	if cfg.Providers.TTS.Voice != "ja-JP-KeitaNeural" {
		t.Errorf("voice = %q", cfg.Providers.TTS.Voice)
	}
	if cfg.Turn.StabilityThreshold != 0.9 {
		t.Errorf("stability_threshold = %v", cfg.Turn.StabilityThreshold)
	}
	if cfg.Modes.SlotFilling != "llm" {
		t.Errorf("slot_filling = %q", cfg.Modes.SlotFilling)
	}
}

func TestEnvOverride_MalformedNumberIgnored(t *testing.T) {
	t.Setenv("VOLUME_THRESHOLD", "loud")

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Turn.VolumeThreshold != 1000 {
		t.Errorf("volume_threshold = %d, want file value 1000", cfg.Turn.VolumeThreshold)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "bad turn taking mode",
			mutate:  func(c *config.Config) { c.Modes.TurnTaking = "psychic" },
			wantErr: "modes.turn_taking",
		},
		{
			name: "llm slot filling without key",
			mutate: func(c *config.Config) {
				c.Modes.SlotFilling = "llm"
				c.Providers.LLM.APIKey = ""
			},
			wantErr: "providers.llm.api_key",
		},
		{
			name: "fast end not below slow end",
			mutate: func(c *config.Config) {
				c.Turn.FastEndChunks = 80
				c.Turn.SlowEndChunks = 20
			},
			wantErr: "fast_end_chunks",
		},
		{
			name:    "stability out of range",
			mutate:  func(c *config.Config) { c.Turn.StabilityThreshold = 1.5 },
			wantErr: "stability_threshold",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			tt.mutate(cfg)
			err = config.Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSessionConfig(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	sc := cfg.SessionConfig()
	if sc.Modes.TurnTaking != session.TurnTakingASRStability {
		t.Errorf("turn taking = %q", sc.Modes.TurnTaking)
	}
	if sc.Modes.BargeIn != session.BargeInConfirmationOnly {
		t.Errorf("barge in = %q", sc.Modes.BargeIn)
	}
	if sc.VolumeThreshold != 1000 || sc.SlowEndChunks != 80 {
		t.Errorf("thresholds = %d/%d", sc.VolumeThreshold, sc.SlowEndChunks)
	}
}

func TestModesConfig_EmptyUsesDefaults(t *testing.T) {
	modes := config.ModesConfig{}.SessionModes()
	if modes != session.DefaultModes() {
		t.Errorf("modes = %+v", modes)
	}
}
