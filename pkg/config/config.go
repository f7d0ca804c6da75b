package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Telegram  TelegramConfig  `json:"telegram"`
	Gemini    GeminiConfig    `json:"gemini"`
	Database  DatabaseConfig  `json:"database"`
	Assistant AssistantConfig `json:"assistant"`
	Logging   LoggingConfig   `json:"logging"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"IARA_GATEWAY_HOST"`
	Port int    `json:"port" env:"IARA_GATEWAY_PORT"`
}

type WhatsAppConfig struct {
	VerifyToken   string `json:"verify_token" env:"IARA_WHATSAPP_VERIFY_TOKEN"`
	AccessToken   string `json:"access_token" env:"IARA_WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID string `json:"phone_number_id" env:"IARA_WHATSAPP_PHONE_NUMBER_ID"`
	GraphBaseURL  string `json:"graph_base_url" env:"IARA_WHATSAPP_GRAPH_BASE_URL"`
	WebhookPath   string `json:"webhook_path" env:"IARA_WHATSAPP_WEBHOOK_PATH"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled" env:"IARA_TELEGRAM_ENABLED"`
	Token   string `json:"token" env:"IARA_TELEGRAM_TOKEN"`
}

type GeminiConfig struct {
	APIKey string `json:"api_key" env:"IARA_GEMINI_API_KEY"`
	Model  string `json:"model" env:"IARA_GEMINI_MODEL"`
}

type DatabaseConfig struct {
	Path string `json:"path" env:"IARA_DATABASE_PATH"`
}

type AssistantConfig struct {
	Name         string `json:"name" env:"IARA_ASSISTANT_NAME"`
	HistoryLimit int    `json:"history_limit" env:"IARA_ASSISTANT_HISTORY_LIMIT"`
}

type LoggingConfig struct {
	FileEnabled bool   `json:"file_enabled" env:"IARA_LOGGING_FILE_ENABLED"`
	FilePath    string `json:"file_path" env:"IARA_LOGGING_FILE_PATH"`
	Debug       bool   `json:"debug" env:"IARA_LOGGING_DEBUG"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		WhatsApp: WhatsAppConfig{
			GraphBaseURL: "https://graph.facebook.com/v21.0",
			WebhookPath:  "/webhook",
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		Database: DatabaseConfig{
			Path: "~/.iara/iara.db",
		},
		Assistant: AssistantConfig{
			Name:         "Iara",
			HistoryLimit: 20,
		},
		Logging: LoggingConfig{
			FileEnabled: false,
			FilePath:    "~/.iara/iara.log",
		},
	}
}

// LoadConfig reads the JSON config file (missing file is fine, defaults
// apply), then overlays IARA_* environment variables and resolves ${VAR}
// references in secret fields. Read once at process start.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	resolveSecretEnvRefs(cfg)

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DatabasePath returns the configured database path with ~ expanded.
func (c *Config) DatabasePath() string {
	return expandHome(c.Database.Path)
}

func resolveSecretEnvRefs(cfg *Config) {
	secrets := []*string{
		&cfg.WhatsApp.VerifyToken,
		&cfg.WhatsApp.AccessToken,
		&cfg.Telegram.Token,
		&cfg.Gemini.APIKey,
	}
	for _, s := range secrets {
		*s = resolveEnvRef(*s)
	}
}

// resolveEnvRef expands "${VAR}" and "$VAR" values so secrets can live in
// the environment while the config file stays committable.
func resolveEnvRef(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return v
	}
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		key := strings.TrimSpace(s[2 : len(s)-1])
		if key == "" {
			return v
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return v
	}
	if strings.HasPrefix(s, "$") && len(s) > 1 {
		if val, ok := os.LookupEnv(strings.TrimSpace(s[1:])); ok {
			return val
		}
	}
	return v
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
