package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/prscore/internal/config"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = config.DefaultDir

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage prscore configuration.

Values resolve in order: PRSCORE_* environment variables, then the
unprefixed compatibility variables (GITHUB_TOKEN, ANTHROPIC_API_KEY,
OPENAI_API_KEY, PORT, FRONTEND_URL, DATABASE_URL), then the config
file, then defaults. A .env file in the working directory is loaded
first.

Running bare 'prscore config' is the same as 'prscore config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
// Secrets are left out on purpose; set them through the environment.
const configTemplate = `# prscore configuration
# See: prscore config show (for effective values and sources)

# State directory for the database, PID and log files
# state_dir: {{ .StateDir }}

server:
  # HTTP port (env: PORT)
  port: {{ .ServerPort }}
  # The only origin allowed by CORS (env: FRONTEND_URL)
  frontend_url: "{{ .FrontendURL }}"

github:
  # token: read from PRSCORE_GITHUB_TOKEN or GITHUB_TOKEN
  # REST root for GitHub Enterprise, e.g. https://ghe.example.com/api/v3/
  base_url: "{{ .GitHubBaseURL }}"
  timeout: {{ .GitHubTimeout }}

llm:
  # anthropic or openai
  provider: {{ .LLMProvider }}
  # Empty uses the provider default
  model: "{{ .LLMModel }}"
  # api_key: read from PRSCORE_LLM_API_KEY, ANTHROPIC_API_KEY or OPENAI_API_KEY
  max_tokens: {{ .LLMMaxTokens }}
  timeout: {{ .LLMTimeout }}

evaluation:
  # Reject category scores above their rubric ceilings
  strict_ranges: {{ .StrictRanges }}

db:
  # sqlite or postgres
  driver: {{ .DBDriver }}
  path: {{ .DBPath }}
  # dsn: read from PRSCORE_DB_DSN or DATABASE_URL

log:
  # debug, info, warn or error
  level: {{ .LogLevel }}
  # text or json
  format: {{ .LogFormat }}
`

type configTemplateData struct {
	StateDir      string
	ServerPort    int
	FrontendURL   string
	GitHubBaseURL string
	GitHubTimeout string
	LLMProvider   string
	LLMModel      string
	LLMMaxTokens  int
	LLMTimeout    string
	StrictRanges  bool
	DBDriver      string
	DBPath        string
	LogLevel      string
	LogFormat     string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:      viper.GetString("state_dir"),
		ServerPort:    viper.GetInt("server.port"),
		FrontendURL:   viper.GetString("server.frontend_url"),
		GitHubBaseURL: viper.GetString("github.base_url"),
		GitHubTimeout: viper.GetDuration("github.timeout").String(),
		LLMProvider:   viper.GetString("llm.provider"),
		LLMModel:      viper.GetString("llm.model"),
		LLMMaxTokens:  viper.GetInt("llm.max_tokens"),
		LLMTimeout:    viper.GetDuration("llm.timeout").String(),
		StrictRanges:  viper.GetBool("evaluation.strict_ranges"),
		DBDriver:      viper.GetString("db.driver"),
		DBPath:        viper.GetString("db.path"),
		LogLevel:      viper.GetString("log.level"),
		LogFormat:     viper.GetString("log.format"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes. EnvVars are
// listed in precedence order.
type configKeyInfo struct {
	Key     string
	EnvVars []string
	Secret  bool
}

func prefixed(key string) string {
	return config.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVars: []string{prefixed("state_dir")}},
	{Key: "server.port", EnvVars: []string{prefixed("server.port"), "PORT"}},
	{Key: "server.frontend_url", EnvVars: []string{prefixed("server.frontend_url"), "FRONTEND_URL"}},
	{Key: "github.token", EnvVars: []string{prefixed("github.token"), "GITHUB_TOKEN"}, Secret: true},
	{Key: "github.base_url", EnvVars: []string{prefixed("github.base_url")}},
	{Key: "github.timeout", EnvVars: []string{prefixed("github.timeout")}},
	{Key: "llm.provider", EnvVars: []string{prefixed("llm.provider")}},
	{Key: "llm.model", EnvVars: []string{prefixed("llm.model")}},
	{Key: "llm.api_key", EnvVars: []string{prefixed("llm.api_key"), "ANTHROPIC_API_KEY", "OPENAI_API_KEY"}, Secret: true},
	{Key: "llm.base_url", EnvVars: []string{prefixed("llm.base_url")}},
	{Key: "llm.max_tokens", EnvVars: []string{prefixed("llm.max_tokens")}},
	{Key: "llm.timeout", EnvVars: []string{prefixed("llm.timeout")}},
	{Key: "evaluation.strict_ranges", EnvVars: []string{prefixed("evaluation.strict_ranges")}},
	{Key: "db.driver", EnvVars: []string{prefixed("db.driver")}},
	{Key: "db.path", EnvVars: []string{prefixed("db.path")}},
	{Key: "db.dsn", EnvVars: []string{prefixed("db.dsn"), "DATABASE_URL"}, Secret: true},
	{Key: "log.level", EnvVars: []string{prefixed("log.level")}},
	{Key: "log.format", EnvVars: []string{prefixed("log.format")}},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	// The provider API key fallback is resolved by config.Load, not viper.
	effective, loadErr := config.Load(viper.GetViper())

	for _, k := range configKeys {
		val := fmt.Sprint(viper.Get(k.Key))
		if k.Key == "llm.api_key" && effective != nil {
			val = effective.LLM.APIKey
		}
		source := detectSource(k.Key, k.EnvVars, fileValues)
		if k.Secret {
			val = maskSecret(val)
		}
		fmt.Fprintf(ui.Out, "  %-26s %v  %s\n", k.Key, val, source)
	}

	if loadErr != nil {
		fmt.Fprintln(ui.Out)
		ui.Warning("%v", loadErr)
	}
	return nil
}

// maskSecret keeps only the last four characters of a credential.
func maskSecret(s string) string {
	if s == "" || s == "<nil>" {
		return "(unset)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from. The first
// environment variable that is set wins.
func detectSource(key string, envVars []string, fileValues map[string]bool) string {
	for _, envVar := range envVars {
		if _, ok := os.LookupEnv(envVar); ok {
			return fmt.Sprintf("(env: %s)", envVar)
		}
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'prscore config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
