// Package assistant – loader.go handles loading configuration from YAML files
// with credential resolution via environment variables and .env files.
package assistant

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable references in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Automatically loads .env files and expands ${VAR} references before parsing.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := ParseConfig([]byte(expandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)

	// Resolve DataDir relative to the config file location so running from
	// another working directory still finds the same state.
	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(filepath.Dir(path), cfg.DataDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// LoadConfigOrDefault loads the config file if it exists, otherwise returns
// defaults with secrets resolved from the environment. Used by the CLI so
// `parley chat` works without a config file.
func LoadConfigOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadConfigFromFile(path)
		}
	}
	loadEnvFiles()
	cfg := DefaultConfig()
	resolveSecrets(cfg)
	return cfg, nil
}

// SaveConfigToFile writes a Config as YAML. Secrets are replaced with
// environment variable references so they never land on disk in plaintext.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.Discord.Token = sanitizeSecret(cfg.Discord.Token, "DISCORD_BOT_TOKEN")
	sanitized.API.APIKey = sanitizeSecret(cfg.API.APIKey, "PARLEY_API_KEY")
	sanitized.TTS.APIKey = sanitizeSecret(cfg.TTS.APIKey, "PARLEY_TTS_API_KEY")

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// loadEnvFiles loads .env from the working directory, silently ignoring
// a missing file.
func loadEnvFiles() {
	_ = godotenv.Load()
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} references with values
// from the environment.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return def
	})
}

// resolveSecrets fills empty secret fields from the keyring and environment.
func resolveSecrets(cfg *Config) {
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = ResolveSecret("discord_token", "DISCORD_BOT_TOKEN")
	}
	if cfg.API.APIKey == "" {
		cfg.API.APIKey = ResolveSecret("api_key", "PARLEY_API_KEY")
	}
	if cfg.TTS.APIKey == "" {
		cfg.TTS.APIKey = ResolveSecret("tts_api_key", "PARLEY_TTS_API_KEY")
	}
}

// sanitizeSecret returns an env reference when the value is set, keeping
// plaintext secrets out of saved config files.
func sanitizeSecret(value, envVar string) string {
	if value == "" {
		return ""
	}
	return "${" + envVar + "}"
}
