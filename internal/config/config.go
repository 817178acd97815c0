// Package config resolves prscore settings from flags, environment, the
// optional config file and defaults into one explicit value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/prscore/internal/llm"
)

// EnvPrefix is prepended to every config key when read from the environment.
const EnvPrefix = "PRSCORE"

type Server struct {
	Port        int
	FrontendURL string
}

type GitHub struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

type LLM struct {
	Provider  llm.Provider
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

type DB struct {
	Driver string
	Path   string
	DSN    string
}

type Log struct {
	Level  string
	Format string
}

// Config is the resolved configuration passed to constructors at startup.
type Config struct {
	StateDir     string
	Server       Server
	GitHub       GitHub
	LLM          LLM
	StrictRanges bool
	DB           DB
	Log          Log
}

// DefaultDir returns ~/.config/prscore.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "prscore"), nil
}

// SetDefaults registers defaults and environment bindings on v. Besides
// PRSCORE_<KEY>, a few unprefixed variables are honoured for
// compatibility with existing deployments.
func SetDefaults(v *viper.Viper, dir string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("state_dir", dir)
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", "")
	v.SetDefault("github.timeout", "20s")
	v.SetDefault("llm.provider", string(llm.ProviderAnthropic))
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("evaluation.strict_ranges", false)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", filepath.Join(dir, "prscore.db"))
	v.SetDefault("db.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	_ = v.BindEnv("github.token", EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.frontend_url", EnvPrefix+"_SERVER_FRONTEND_URL", "FRONTEND_URL")
	_ = v.BindEnv("db.dsn", EnvPrefix+"_DB_DSN", "DATABASE_URL")
}

// Load resolves v into a Config and validates enumerated values.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		StateDir: v.GetString("state_dir"),
		Server: Server{
			Port:        v.GetInt("server.port"),
			FrontendURL: v.GetString("server.frontend_url"),
		},
		GitHub: GitHub{
			Token:   v.GetString("github.token"),
			BaseURL: v.GetString("github.base_url"),
			Timeout: v.GetDuration("github.timeout"),
		},
		LLM: LLM{
			Provider:  llm.Provider(strings.ToLower(v.GetString("llm.provider"))),
			Model:     v.GetString("llm.model"),
			APIKey:    v.GetString("llm.api_key"),
			BaseURL:   v.GetString("llm.base_url"),
			MaxTokens: v.GetInt("llm.max_tokens"),
			Timeout:   v.GetDuration("llm.timeout"),
		},
		StrictRanges: v.GetBool("evaluation.strict_ranges"),
		DB: DB{
			Driver: strings.ToLower(v.GetString("db.driver")),
			Path:   v.GetString("db.path"),
			DSN:    v.GetString("db.dsn"),
		},
		Log: Log{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	switch cfg.LLM.Provider {
	case llm.ProviderAnthropic:
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case llm.ProviderOpenAI:
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	default:
		return nil, fmt.Errorf("llm.provider %q: must be anthropic or openai", cfg.LLM.Provider)
	}

	switch cfg.DB.Driver {
	case "sqlite":
	case "postgres":
		if cfg.DB.DSN == "" {
			return nil, fmt.Errorf("db.dsn is required when db.driver is postgres")
		}
	default:
		return nil, fmt.Errorf("db.driver %q: must be sqlite or postgres", cfg.DB.Driver)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server.port %d: out of range", cfg.Server.Port)
	}

	return cfg, nil
}

// LLMConfig converts the LLM section into the llm package's Config.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:  c.LLM.Provider,
		APIKey:    c.LLM.APIKey,
		Model:     c.LLM.Model,
		BaseURL:   c.LLM.BaseURL,
		MaxTokens: c.LLM.MaxTokens,
	}
}
