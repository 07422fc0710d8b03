package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel          = "deepseek-r1:7b"
	DefaultOllamaBaseURL  = "http://localhost:11434"
	DefaultRequestTimeout = 60 // seconds, per generation request
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 18490
	DefaultBufSize        = 100
	DefaultModelRefresh   = "@every 5m"
	DefaultPostAckTimeout = 10 // seconds to wait for the extension's posted ack
)

type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Provider ProviderConfig `json:"provider"`
	Typing   TypingConfig   `json:"typing"`
	Choices  ChoicesConfig  `json:"choices"`
	Notify   NotifyConfig   `json:"notify"`
}

type GatewayConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ModelRefresh   string `json:"modelRefresh,omitempty"`   // cron spec for catalog refresh
	PostAckTimeout int    `json:"postAckTimeout,omitempty"` // seconds
}

// ProviderConfig selects the generation backend. Type "ollama" (default)
// speaks /api/generate; "openai" speaks an OpenAI-compatible
// /chat/completions endpoint and needs an API key.
type ProviderConfig struct {
	Type           string `json:"type,omitempty"`
	BaseURL        string `json:"baseUrl,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

type TypingConfig struct {
	WordsPerMinute int `json:"wordsPerMinute,omitempty"`
}

type ChoicesConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig enables operator alerts for engine failures.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chatId,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:           DefaultHost,
			Port:           DefaultPort,
			ModelRefresh:   DefaultModelRefresh,
			PostAckTimeout: DefaultPostAckTimeout,
		},
		Provider: ProviderConfig{
			BaseURL:        DefaultOllamaBaseURL,
			Model:          DefaultModel,
			TimeoutSeconds: DefaultRequestTimeout,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".voxpilot")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if url := os.Getenv("VOXPILOT_OLLAMA_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if typ := os.Getenv("VOXPILOT_PROVIDER"); typ != "" {
		cfg.Provider.Type = typ
	}
	if key := os.Getenv("VOXPILOT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if model := os.Getenv("VOXPILOT_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if port := os.Getenv("VOXPILOT_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}
	if token := os.Getenv("VOXPILOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram.Token = token
		cfg.Notify.Telegram.Enabled = true
	}
	if chat := os.Getenv("VOXPILOT_TELEGRAM_CHAT"); chat != "" {
		if parsed, err := strconv.ParseInt(chat, 10, 64); err == nil {
			cfg.Notify.Telegram.ChatID = parsed
		}
	}
	if dbPath := os.Getenv("VOXPILOT_CHOICES_DB"); dbPath != "" {
		cfg.Choices.DBPath = dbPath
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = DefaultHost
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.ModelRefresh == "" {
		cfg.Gateway.ModelRefresh = DefaultModelRefresh
	}
	if cfg.Gateway.PostAckTimeout <= 0 {
		cfg.Gateway.PostAckTimeout = DefaultPostAckTimeout
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = DefaultRequestTimeout
	}
	if cfg.Choices.DBPath == "" {
		cfg.Choices.DBPath = filepath.Join(ConfigDir(), "data", "choices.db")
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
