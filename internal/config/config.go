package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines configuration for both the backend and the field client.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	API       APIConfig       `yaml:"api"`
	Sync      SyncConfig      `yaml:"sync"`
	Draft     DraftConfig     `yaml:"draft"`
	Geofence  GeofenceConfig  `yaml:"geofence"`
	Templates TemplatesConfig `yaml:"templates"`
}

// ServerConfig configures the backend listener. APIKeys maps bearer tokens to
// auditor IDs; an empty map disables authentication.
type ServerConfig struct {
	Host    string            `yaml:"host"`
	Port    int               `yaml:"port"`
	APIKeys map[string]string `yaml:"api_keys"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// TransportConfig selects how the field client exposes its MCP server.
type TransportConfig struct {
	Mode string `yaml:"mode"`
}

// APIConfig points the field client at the backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"`
}

type SyncConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	ItemPacing  time.Duration `yaml:"item_pacing"`
}

type DraftConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// GeofenceConfig holds radii in meters.
type GeofenceConfig struct {
	StartRadius       float64 `yaml:"start_radius"`
	SubmitEntryRadius float64 `yaml:"submit_entry_radius"`
	SubmitBlockRadius float64 `yaml:"submit_block_radius"`
}

// TemplatesConfig names the YAML file the backend seeds templates from.
type TemplatesConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "fieldaudit.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 15 * time.Second,
		},
		Sync: SyncConfig{
			MaxAttempts: 3,
			BaseBackoff: 500 * time.Millisecond,
			MaxBackoff:  8 * time.Second,
			ItemPacing:  150 * time.Millisecond,
		},
		Draft: DraftConfig{
			Debounce:      750 * time.Millisecond,
			FlushInterval: 30 * time.Second,
		},
		Geofence: GeofenceConfig{
			StartRadius:       100,
			SubmitEntryRadius: 150,
			SubmitBlockRadius: 500,
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("FIELDAUDIT_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Sync.BaseBackoff < 0 || c.Sync.MaxBackoff < c.Sync.BaseBackoff {
		return fmt.Errorf("sync backoff must satisfy 0 <= base_backoff <= max_backoff")
	}
	if c.Draft.Debounce <= 0 || c.Draft.FlushInterval <= 0 {
		return fmt.Errorf("draft intervals must be positive")
	}
	g := c.Geofence
	if g.StartRadius < 0 || g.SubmitEntryRadius < 0 ||
		g.SubmitEntryRadius > g.SubmitBlockRadius {
		return fmt.Errorf("geofence radii must satisfy 0 <= entry <= block")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("FIELDAUDIT_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if err := envInt("FIELDAUDIT_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if raw := os.Getenv("FIELDAUDIT_API_KEYS"); raw != "" {
		keys, err := parseAPIKeys(raw)
		if err != nil {
			return err
		}
		cfg.Server.APIKeys = keys
	}
	if dbPath := os.Getenv("FIELDAUDIT_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("FIELDAUDIT_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("FIELDAUDIT_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if mode := os.Getenv("FIELDAUDIT_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if baseURL := os.Getenv("FIELDAUDIT_API_BASE_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if err := envDuration("FIELDAUDIT_API_TIMEOUT", &cfg.API.Timeout); err != nil {
		return err
	}
	if token := os.Getenv("FIELDAUDIT_API_TOKEN"); token != "" {
		cfg.API.Token = token
	}
	if err := envInt("FIELDAUDIT_SYNC_MAX_ATTEMPTS", &cfg.Sync.MaxAttempts); err != nil {
		return err
	}
	if err := envDuration("FIELDAUDIT_SYNC_BASE_BACKOFF", &cfg.Sync.BaseBackoff); err != nil {
		return err
	}
	if err := envDuration("FIELDAUDIT_SYNC_MAX_BACKOFF", &cfg.Sync.MaxBackoff); err != nil {
		return err
	}
	if err := envDuration("FIELDAUDIT_SYNC_ITEM_PACING", &cfg.Sync.ItemPacing); err != nil {
		return err
	}
	if err := envDuration("FIELDAUDIT_DRAFT_DEBOUNCE", &cfg.Draft.Debounce); err != nil {
		return err
	}
	if err := envDuration("FIELDAUDIT_DRAFT_FLUSH_INTERVAL", &cfg.Draft.FlushInterval); err != nil {
		return err
	}
	if err := envFloat("FIELDAUDIT_GEOFENCE_START_RADIUS", &cfg.Geofence.StartRadius); err != nil {
		return err
	}
	if path := os.Getenv("FIELDAUDIT_TEMPLATES_PATH"); path != "" {
		cfg.Templates.Path = path
	}
	return nil
}

// parseAPIKeys reads "token=auditor" pairs separated by commas.
func parseAPIKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, auditor, ok := strings.Cut(pair, "=")
		token, auditor = strings.TrimSpace(token), strings.TrimSpace(auditor)
		if !ok || token == "" || auditor == "" {
			return nil, fmt.Errorf("invalid FIELDAUDIT_API_KEYS entry %q", pair)
		}
		keys[token] = auditor
	}
	return keys, nil
}

func envInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func envFloat(name string, dst *float64) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
