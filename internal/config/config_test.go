package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	interrors "github.com/streed/snap-notes/internal/errors"
)

func TestGetDefaultDataDirectory(t *testing.T) {
	tests := []struct {
		name     string
		xdgHome  string
		expected string
	}{
		{
			name:     "With XDG_DATA_HOME set",
			xdgHome:  "/custom/data",
			expected: "/custom/data/snap-notes",
		},
		{
			name:    "Without XDG_DATA_HOME",
			xdgHome: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_DATA_HOME", tt.xdgHome)
			result := GetDefaultDataDirectory()

			expected := tt.expected
			if tt.xdgHome == "" {
				homeDir, _ := os.UserHomeDir()
				expected = filepath.Join(homeDir, ".local", "share", "snap-notes")
			}
			if result != expected {
				t.Errorf("Expected %s, got %s", expected, result)
			}
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "snap-notes", "config.json")

	cfg := Default()
	cfg.DataDirectory = filepath.Join(tempDir, "data")
	cfg.Debug = true
	cfg.Peers = []PeerConfig{{Name: "todo_extractor", Enabled: true, Command: "todo-peer", Timeout: Duration(5 * time.Second)}}

	if err := SaveFile(cfg, configFile); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	info, err := os.Stat(configFile)
	if err != nil {
		t.Fatalf("Config file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := LoadFile(configFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.DataDirectory != cfg.DataDirectory {
		t.Errorf("DataDirectory = %s, want %s", loaded.DataDirectory, cfg.DataDirectory)
	}
	if !loaded.Debug {
		t.Error("Debug flag was lost")
	}
	if len(loaded.Peers) != 1 || loaded.Peers[0].Timeout.Std() != 5*time.Second {
		t.Errorf("Peers not round-tripped: %+v", loaded.Peers)
	}
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.OCR.Enabled {
		t.Error("OCR should be enabled by default")
	}
	if cfg.SearchLimit(0) != 50 {
		t.Errorf("default search limit = %d", cfg.SearchLimit(0))
	}
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", `{"not_a_setting": true}`},
		{"bad peer name", `{"peers":[{"name":"has space","enabled":true,"command":"x"}]}`},
		{"duplicate peer", `{"peers":[{"name":"a","command":"x"},{"name":"a","command":"y"}]}`},
		{"enabled peer without command", `{"peers":[{"name":"a","enabled":true}]}`},
		{"unknown provider", `{"vlm":{"provider":"acme"}}`},
		{"bad duration", `{"peer_timeout":"soon"}`},
		{"confidence out of range", `{"ocr":{"min_confidence":2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.name != "bad duration" && !errors.Is(err, interrors.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestParseAppliesOpenAIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Parse([]byte(`{"summary":{"provider":"openai","api_key":"sk-own"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VLM.APIKey != "sk-test" {
		t.Errorf("VLM key = %q, want env key", cfg.VLM.APIKey)
	}
	if cfg.Summary.APIKey != "sk-own" {
		t.Errorf("explicit summary key was overwritten: %q", cfg.Summary.APIKey)
	}
}

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Duration(90 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"1m30s"` {
		t.Errorf("got %s", data)
	}
}

func TestPeerTimeoutFor(t *testing.T) {
	cfg := Default()
	cfg.PeerTimeout = Duration(10 * time.Second)

	if got := cfg.PeerTimeoutFor(PeerConfig{Name: "a"}); got != 10*time.Second {
		t.Errorf("fallback timeout = %v", got)
	}
	if got := cfg.PeerTimeoutFor(PeerConfig{Name: "a", Timeout: Duration(time.Second)}); got != time.Second {
		t.Errorf("own timeout = %v", got)
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    error
		check      func(*Config) bool
	}{
		{"debug", "yes", nil, func(c *Config) bool { return c.Debug }},
		{"debug", "maybe", interrors.ErrInvalidBoolean, nil},
		{"vlm-provider", "OpenAI", nil, func(c *Config) bool { return c.VLM.Provider == "openai" }},
		{"vlm-provider", "acme", interrors.ErrInvalidConfig, nil},
		{"weekly-day", "fri", nil, func(c *Config) bool { return c.Summary.WeeklyDay == "fri" }},
		{"daily-time", "25:99", interrors.ErrInvalidConfig, nil},
		{"peer-timeout", "45s", nil, func(c *Config) bool { return c.PeerTimeout.Std() == 45*time.Second }},
		{"no-such-key", "x", interrors.ErrUnknownConfigKey, nil},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := Default()
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("setting %s did not take effect", tt.key)
			}
		})
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Wednesday")
	if err != nil || d != time.Wednesday {
		t.Errorf("got %v, %v", d, err)
	}
	if _, err := ParseWeekday("someday"); err == nil {
		t.Error("expected error for unknown day")
	}
}
