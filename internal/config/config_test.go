package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/prscore/internal/llm"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GITHUB_TOKEN", "PORT", "FRONTEND_URL", "DATABASE_URL",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"PRSCORE_GITHUB_TOKEN", "PRSCORE_SERVER_PORT", "PRSCORE_LLM_PROVIDER",
		"PRSCORE_LLM_API_KEY", "PRSCORE_DB_DRIVER", "PRSCORE_DB_DSN",
	} {
		t.Setenv(k, "")
	}
}

func newViper(t *testing.T) (*viper.Viper, string) {
	t.Helper()
	dir := t.TempDir()
	v := viper.New()
	SetDefaults(v, dir)
	return v, dir
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	v, dir := newViper(t)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.StateDir)
	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "http://localhost:3000", cfg.Server.FrontendURL)
	assert.Equal(t, 20*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, llm.ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.False(t, cfg.StrictRanges)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, filepath.Join(dir, "prscore.db"), cfg.DB.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRSCORE_SERVER_PORT", "8080")
	t.Setenv("PRSCORE_LLM_PROVIDER", "OpenAI")
	t.Setenv("PRSCORE_LLM_API_KEY", "sk-prefixed")
	v, _ := newViper(t)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, llm.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "sk-prefixed", cfg.LLM.APIKey)
}

func TestLoad_FallbackEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")
	t.Setenv("PORT", "4000")
	t.Setenv("FRONTEND_URL", "https://app.example.com")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("DATABASE_URL", "postgres://localhost/prscore")
	v, _ := newViper(t)
	v.Set("db.driver", "postgres")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "ghp_fallback", cfg.GitHub.Token)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "https://app.example.com", cfg.Server.FrontendURL)
	assert.Equal(t, "sk-ant", cfg.LLM.APIKey)
	assert.Equal(t, "postgres://localhost/prscore", cfg.DB.DSN)
}

func TestLoad_PrefixedWinsOverFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")
	t.Setenv("PRSCORE_GITHUB_TOKEN", "ghp_prefixed")
	v, _ := newViper(t)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "ghp_prefixed", cfg.GitHub.Token)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{"provider", "llm.provider", "gemini", "llm.provider"},
		{"driver", "db.driver", "mysql", "db.driver"},
		{"postgres without dsn", "db.driver", "postgres", "db.dsn"},
		{"port", "server.port", 70000, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			v, _ := newViper(t)
			v.Set(tt.key, tt.val)

			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLog_NewLogger(t *testing.T) {
	var buf bytes.Buffer

	l, err := Log{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = Log{Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)

	_, err = Log{Level: "info", Format: "xml"}.NewLogger(&buf)
	assert.Error(t, err)
}
