package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// DatabaseDriver selects the storage adapter.
type DatabaseDriver string

const (
	DriverSQLite   DatabaseDriver = "sqlite"
	DriverPostgres DatabaseDriver = "postgres"
)

// DefaultHonorLimit applies until an administrator stores a ceiling.
const DefaultHonorLimit int64 = 3000000

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Honor    HonorConfig    `toml:"honor"`
	Warnings WarningsConfig `toml:"warnings"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Identity IdentityConfig `toml:"identity"`
}

type DatabaseConfig struct {
	Driver DatabaseDriver `toml:"driver"`
	Path   string         `toml:"path"`
	URL    string         `toml:"url"`
}

type HonorConfig struct {
	DefaultLimit int64  `toml:"default_limit"`
	Currency     string `toml:"currency"`
}

type WarningsConfig struct {
	StaleAfter string `toml:"stale_after"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// IdentityConfig attributes CLI and TUI edits.
type IdentityConfig struct {
	ActorID string `toml:"actor_id"`
	Role    string `toml:"role"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   dbPath,
		},
		Honor: HonorConfig{
			DefaultLimit: DefaultHonorLimit,
			Currency:     "IDR",
		},
		Warnings: WarningsConfig{
			StaleAfter: "48h",
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".fieldwork/log",
			},
		},
		Identity: IdentityConfig{
			ActorID: "fieldwork-user",
			Role:    "staff",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, "":
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	if c.Honor.DefaultLimit < 0 {
		return fmt.Errorf("honor.default_limit must be >= 0, got %d", c.Honor.DefaultLimit)
	}
	if _, err := c.StaleAfter(); err != nil {
		return err
	}

	for name, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("%s must start with '/': %q", name, endpoint)
		}
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	switch strings.TrimSpace(strings.ToLower(c.Identity.Role)) {
	case "", "staff", "admin":
	default:
		return fmt.Errorf("invalid identity.role: %q", c.Identity.Role)
	}
	return nil
}

// StaleAfter parses warnings.stale_after, defaulting to 48h when blank.
func (c Config) StaleAfter() (time.Duration, error) {
	raw := strings.TrimSpace(c.Warnings.StaleAfter)
	if raw == "" {
		return 48 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid warnings.stale_after %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("warnings.stale_after must be positive, got %q", raw)
	}
	return d, nil
}

// SetHonorDefaultLimit rewrites honor.default_limit in the config file at
// path, leaving every other key as written.
func SetHonorDefaultLimit(path string, limit int64) error {
	if limit < 0 {
		return fmt.Errorf("honor.default_limit must be >= 0, got %d", limit)
	}
	return updateFile(path, func(doc map[string]any) {
		honor, _ := doc["honor"].(map[string]any)
		if honor == nil {
			honor = map[string]any{}
		}
		honor["default_limit"] = limit
		doc["honor"] = honor
	})
}

func updateFile(path string, mutate func(map[string]any)) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("config path is required")
	}
	doc := map[string]any{}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read config: %w", err)
	case len(content) > 0:
		if err := toml.Unmarshal(content, &doc); err != nil {
			return fmt.Errorf("decode toml: %w", err)
		}
	}
	mutate(doc)
	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
