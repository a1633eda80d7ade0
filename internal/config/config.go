// Package config loads gmapi settings from an optional YAML file and GMAPI_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
)

// Config holds everything needed to assemble a session.
type Config struct {
	// Account is the Gmail user id; "me" means the authorized user.
	Account string `mapstructure:"account" yaml:"account"`

	ClientSecrets string   `mapstructure:"client_secrets" yaml:"client_secrets"`
	TokenPath     string   `mapstructure:"token_path" yaml:"token_path"`
	Scopes        []string `mapstructure:"scopes" yaml:"scopes"`

	// CredentialBackend is "file" or "keyring".
	CredentialBackend string `mapstructure:"credential_backend" yaml:"credential_backend"`
	KeyringService    string `mapstructure:"keyring_service" yaml:"keyring_service"`

	// JournalPath enables the sent-message journal when non-empty.
	JournalPath string `mapstructure:"journal_path" yaml:"journal_path"`

	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	ConsentTimeout time.Duration `mapstructure:"consent_timeout" yaml:"consent_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("account", "me")
	v.SetDefault("client_secrets", "credentials.json")
	v.SetDefault("token_path", "token.json")
	v.SetDefault("scopes", []string{"modify"})
	v.SetDefault("credential_backend", BackendFile)
	v.SetDefault("keyring_service", "gmapi")
	v.SetDefault("journal_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("consent_timeout", 5*time.Minute)
}

// Load reads path (skipped when empty or missing), applies GMAPI_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GMAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no session could be built from.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Account) == "" {
		return errors.New("config: account must not be empty")
	}
	if len(c.Scopes) == 0 {
		return errors.New("config: at least one scope is required")
	}
	switch c.CredentialBackend {
	case BackendFile:
		if c.TokenPath == "" {
			return errors.New("config: token_path is required for the file backend")
		}
	case BackendKeyring:
	default:
		return fmt.Errorf("config: unknown credential backend %q", c.CredentialBackend)
	}
	return nil
}
