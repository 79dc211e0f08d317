package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/streed/snap-notes/internal/constants"
	interrors "github.com/streed/snap-notes/internal/errors"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("30s", "2m") in the config file.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	DataDirectory      string   `json:"data_directory"`
	IndexPath          string   `json:"index_path,omitempty"`
	Debug              bool     `json:"debug"`
	DefaultTags        []string `json:"default_tags,omitempty"`
	SearchDefaultLimit int      `json:"search_default_limit"`
	PipelineTimeout    Duration `json:"pipeline_timeout"`
	PeerTimeout        Duration `json:"peer_timeout"`

	OCR     OCRConfig     `json:"ocr"`
	VLM     VLMConfig     `json:"vlm"`
	Peers   []PeerConfig  `json:"peers,omitempty"`
	Summary SummaryConfig `json:"summary"`
}

type OCRConfig struct {
	Enabled       bool     `json:"enabled"`
	TesseractPath string   `json:"tesseract_path"`
	Languages     string   `json:"languages"`
	Timeout       Duration `json:"timeout"`
	MinConfidence float64  `json:"min_confidence"`
}

type VLMConfig struct {
	Enabled  bool     `json:"enabled"`
	Provider string   `json:"provider"`
	Endpoint string   `json:"endpoint,omitempty"`
	Model    string   `json:"model"`
	APIKey   string   `json:"api_key,omitempty"`
	Prompt   string   `json:"prompt,omitempty"`
	Timeout  Duration `json:"timeout"`
}

// PeerConfig declares one post-processing peer: an external process speaking
// MCP over its stdin/stdout.
type PeerConfig struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Tool    string            `json:"tool,omitempty"`
	Timeout Duration          `json:"timeout,omitempty"`
}

type SummaryConfig struct {
	Enabled            bool   `json:"enabled"`
	Provider           string `json:"provider"`
	Endpoint           string `json:"endpoint,omitempty"`
	Model              string `json:"model"`
	APIKey             string `json:"api_key,omitempty"`
	DailyTime          string `json:"daily_time"`
	WeeklyDay          string `json:"weekly_day"`
	WeeklyTime         string `json:"weekly_time"`
	DailyLookbackDays  int    `json:"daily_lookback_days"`
	WeeklyLookbackDays int    `json:"weekly_lookback_days"`
}

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DefaultPeerTool = "process_capture"
)

var peerNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// getDefaultConfig returns a fresh copy of the default configuration
func getDefaultConfig() Config {
	return Config{
		DataDirectory:      "", // Will be set to ~/.local/share/snap-notes
		SearchDefaultLimit: constants.DefaultSearchLimit,
		PipelineTimeout:    Duration(constants.DefaultPipelineTimeout),
		PeerTimeout:        Duration(constants.DefaultPeerTimeout),
		OCR: OCRConfig{
			Enabled:       true,
			TesseractPath: "tesseract",
			Languages:     "eng",
			Timeout:       Duration(constants.DefaultOCRTimeout),
			MinConfidence: 0.3,
		},
		VLM: VLMConfig{
			Enabled:  false,
			Provider: ProviderOllama,
			Model:    "llama3.2-vision",
			Timeout:  Duration(constants.DefaultVLMTimeout),
		},
		Summary: SummaryConfig{
			Enabled:            false,
			Provider:           ProviderOllama,
			Model:              "llama3.2:latest",
			DailyTime:          "18:00",
			WeeklyDay:          "sunday",
			WeeklyTime:         "19:00",
			DailyLookbackDays:  1,
			WeeklyLookbackDays: 7,
		},
	}
}

// Default returns the default configuration with data paths resolved.
func Default() *Config {
	cfg := getDefaultConfig()
	cfg.DataDirectory = GetDefaultDataDirectory()
	return &cfg
}

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "snap-notes", "config.json"), nil
}

func GetDefaultDataDirectory() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", ".snap-notes")
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "snap-notes")
}

// Load reads the config file, or returns defaults when none exists.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile reads and validates the config at path. Unknown fields are rejected.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a config document on top of the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := getDefaultConfig()

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", interrors.ErrInvalidConfig, err)
	}

	if cfg.DataDirectory == "" {
		cfg.DataDirectory = GetDefaultDataDirectory()
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return
	}
	if c.VLM.APIKey == "" {
		c.VLM.APIKey = key
	}
	if c.Summary.APIKey == "" {
		c.Summary.APIKey = key
	}
}

// Validate checks the peer descriptors and provider choices.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, p := range c.Peers {
		if p.Name == "" {
			return fmt.Errorf("%w: peers[%d] has no name", interrors.ErrInvalidConfig, i)
		}
		if !peerNamePattern.MatchString(p.Name) {
			return fmt.Errorf("%w: peer name %q must match %s", interrors.ErrInvalidConfig, p.Name, peerNamePattern)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate peer name %q", interrors.ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = true
		if p.Enabled && strings.TrimSpace(p.Command) == "" {
			return fmt.Errorf("%w: enabled peer %q has no command", interrors.ErrInvalidConfig, p.Name)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("%w: peer %q has a negative timeout", interrors.ErrInvalidConfig, p.Name)
		}
	}

	for _, provider := range []string{c.VLM.Provider, c.Summary.Provider} {
		if provider != ProviderOllama && provider != ProviderOpenAI {
			return fmt.Errorf("%w: unsupported provider %q (use ollama or openai)", interrors.ErrInvalidConfig, provider)
		}
	}

	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 1 {
		return fmt.Errorf("%w: ocr.min_confidence must be within 0..1", interrors.ErrInvalidConfig)
	}
	if c.SearchDefaultLimit < 0 {
		return fmt.Errorf("%w: search_default_limit must not be negative", interrors.ErrInvalidConfig)
	}
	return nil
}

func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(cfg, configPath)
}

func SaveFile(cfg *Config, configPath string) error {
	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if cfg.DataDirectory != "" {
		if err := os.MkdirAll(cfg.DataDirectory, constants.DataDirMode); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write config file with secure permissions
	if err := os.WriteFile(configPath, data, constants.ConfigFileMode); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// InitializeConfig writes a fresh default configuration.
func InitializeConfig(dataDir, ollamaEndpoint string) (*Config, error) {
	cfg := Default()
	if dataDir != "" {
		cfg.DataDirectory = dataDir
	}
	if ollamaEndpoint != "" {
		cfg.VLM.Endpoint = ollamaEndpoint
		cfg.Summary.Endpoint = ollamaEndpoint
	}

	if err := Save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) GetIndexPath() string {
	if c.IndexPath != "" {
		return c.IndexPath
	}
	return filepath.Join(c.DataDirectory, constants.DefaultIndexFilename)
}

// EnabledPeers returns the peers with Enabled set, in declaration order.
func (c *Config) EnabledPeers() []PeerConfig {
	var peers []PeerConfig
	for _, p := range c.Peers {
		if p.Enabled {
			peers = append(peers, p)
		}
	}
	return peers
}

// PeerTimeoutFor returns the peer's own timeout or the global default.
func (c *Config) PeerTimeoutFor(p PeerConfig) time.Duration {
	if p.Timeout > 0 {
		return p.Timeout.Std()
	}
	if c.PeerTimeout > 0 {
		return c.PeerTimeout.Std()
	}
	return constants.DefaultPeerTimeout
}

// SearchLimit resolves a caller-supplied limit against the configured default.
func (c *Config) SearchLimit(requested int) int {
	if requested > 0 {
		if requested > constants.MaxSearchLimit {
			return constants.MaxSearchLimit
		}
		return requested
	}
	if c.SearchDefaultLimit > 0 {
		return c.SearchDefaultLimit
	}
	return constants.DefaultSearchLimit
}
