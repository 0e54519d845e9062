package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Provider  ProviderConfig  `yaml:"provider"`
	Vault     VaultConfig     `yaml:"vault"`
	Journal   JournalConfig   `yaml:"journal"`
	Coach     CoachConfig     `yaml:"coach"`
	Voice     VoiceConfig     `yaml:"voice"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type ProviderConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Vault backends.
const (
	VaultKeyring  = "keyring"
	VaultDatabase = "database"
)

type VaultConfig struct {
	Backend string `yaml:"backend"`
	// Scope is the default credential scope: a device or user name.
	Scope string `yaml:"scope"`
	// Secret seals credentials stored in the database backend.
	Secret string `yaml:"secret"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

type CoachConfig struct {
	AnnounceDelay       time.Duration `yaml:"announce_delay"`
	ExerciseRestSeconds int           `yaml:"exercise_rest_seconds"`
	DefaultRestSeconds  int           `yaml:"default_rest_seconds"`
	SelfHearingWindow   time.Duration `yaml:"self_hearing_window"`
	CompletionWait      time.Duration `yaml:"completion_wait"`
}

type VoiceConfig struct {
	Rate   float64 `yaml:"rate"`
	Pitch  float64 `yaml:"pitch"`
	Volume float64 `yaml:"volume"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Defaults returns the configuration used for anything the file leaves out.
func Defaults() Config {
	return Config{
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8080},
		Tailscale: TailscaleConfig{Hostname: "repcoach", StateDir: "tsnet-state"},
		Database:  DatabaseConfig{Port: 5432},
		Provider:  ProviderConfig{Name: "hevy", BaseURL: "https://api.hevyapp.com/v1", Timeout: 30 * time.Second},
		Vault:     VaultConfig{Backend: VaultKeyring, Scope: "default"},
		Journal:   JournalConfig{Dir: "data"},
		Coach: CoachConfig{
			AnnounceDelay:       500 * time.Millisecond,
			ExerciseRestSeconds: 30,
			DefaultRestSeconds:  60,
			SelfHearingWindow:   3 * time.Second,
			CompletionWait:      10 * time.Second,
		},
		Voice: VoiceConfig{Rate: 1.1, Pitch: 1, Volume: 1},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. Env vars use the prefix REPCOACH_ and
// underscore-separated paths:
//
//	REPCOACH_SERVER_HOST, REPCOACH_SERVER_PORT,
//	REPCOACH_TAILSCALE_ENABLED, REPCOACH_TAILSCALE_HOSTNAME,
//	REPCOACH_DB_ENABLED, REPCOACH_DB_HOST, REPCOACH_DB_PORT, REPCOACH_DB_NAME,
//	REPCOACH_DB_USER, REPCOACH_DB_PASSWORD, REPCOACH_DB_SSLMODE,
//	REPCOACH_AUTH_API_KEY, REPCOACH_PROVIDER_BASE_URL,
//	REPCOACH_VAULT_BACKEND, REPCOACH_VAULT_SCOPE, REPCOACH_VAULT_SECRET,
//	REPCOACH_JOURNAL_DIR, REPCOACH_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("REPCOACH_SERVER_HOST", &cfg.Server.Host)
	num("REPCOACH_SERVER_PORT", &cfg.Server.Port)
	flag("REPCOACH_TAILSCALE_ENABLED", &cfg.Tailscale.Enabled)
	str("REPCOACH_TAILSCALE_HOSTNAME", &cfg.Tailscale.Hostname)
	flag("REPCOACH_DB_ENABLED", &cfg.Database.Enabled)
	str("REPCOACH_DB_HOST", &cfg.Database.Host)
	num("REPCOACH_DB_PORT", &cfg.Database.Port)
	str("REPCOACH_DB_NAME", &cfg.Database.Name)
	str("REPCOACH_DB_USER", &cfg.Database.User)
	str("REPCOACH_DB_PASSWORD", &cfg.Database.Password)
	str("REPCOACH_DB_SSLMODE", &cfg.Database.SSLMode)
	str("REPCOACH_AUTH_API_KEY", &cfg.Auth.APIKey)
	str("REPCOACH_PROVIDER_BASE_URL", &cfg.Provider.BaseURL)
	str("REPCOACH_VAULT_BACKEND", &cfg.Vault.Backend)
	str("REPCOACH_VAULT_SCOPE", &cfg.Vault.Scope)
	str("REPCOACH_VAULT_SECRET", &cfg.Vault.Secret)
	str("REPCOACH_JOURNAL_DIR", &cfg.Journal.Dir)
	str("REPCOACH_LOG_LEVEL", &cfg.Log.Level)
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Vault.Backend {
	case VaultKeyring:
	case VaultDatabase:
		if !c.Database.Enabled {
			return fmt.Errorf("vault.backend %q requires database.enabled", VaultDatabase)
		}
		if c.Vault.Secret == "" {
			return fmt.Errorf("vault.secret is required for the %q backend", VaultDatabase)
		}
	default:
		return fmt.Errorf("vault.backend must be %q or %q, got %q", VaultKeyring, VaultDatabase, c.Vault.Backend)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	}

	if c.Provider.Name == "" {
		return fmt.Errorf("provider.name is required")
	}
	if c.Coach.ExerciseRestSeconds < 0 || c.Coach.DefaultRestSeconds < 0 {
		return fmt.Errorf("coach rest seconds must not be negative")
	}
	if c.Voice.Rate <= 0 || c.Voice.Volume < 0 || c.Voice.Volume > 1 {
		return fmt.Errorf("voice.rate must be positive and voice.volume within [0, 1]")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}
