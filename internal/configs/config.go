package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultRelayURL     = "ws://localhost:4443"
	DefaultRelayTimeout = 10 * time.Minute
	DefaultWords        = 2
	DefaultShareTTL     = 5 * time.Minute

	MinWords = 1
	MaxWords = 8
)

type UserConfig struct {
	User    User                `toml:"user"`
	Relay   RelayConfig         `toml:"relay"`
	Share   ShareConfig         `toml:"share"`
	Aliases map[string]string   `toml:"aliases"`
	Groups  map[string][]string `toml:"groups"`
}

type User struct {
	Name string `toml:"name"`
	UUID string `toml:"user_uuid"`
}

type RelayConfig struct {
	URL string `toml:"url"`

	// Timeout bounds a whole client-side transfer.
	Timeout time.Duration `toml:"timeout"`
}

type ShareConfig struct {
	Words int           `toml:"words"`
	TTL   time.Duration `toml:"ttl"`
}

// applyDefaults fills every unset field.
func (c *UserConfig) applyDefaults() {
	if c.Relay.URL == "" {
		c.Relay.URL = DefaultRelayURL
	}
	if c.Relay.Timeout <= 0 {
		c.Relay.Timeout = DefaultRelayTimeout
	}
	if c.Share.Words == 0 {
		c.Share.Words = DefaultWords
	}
	if c.Share.TTL <= 0 {
		c.Share.TTL = DefaultShareTTL
	}
	if c.Aliases == nil {
		c.Aliases = make(map[string]string)
	}
	if c.Groups == nil {
		c.Groups = make(map[string][]string)
	}
}

// Validate checks values a user may have edited by hand.
func (c *UserConfig) Validate() error {
	if c.Share.Words < MinWords || c.Share.Words > MaxWords {
		return fmt.Errorf("config: share.words must be between %d and %d, got %d", MinWords, MaxWords, c.Share.Words)
	}
	for name, members := range c.Groups {
		if len(members) == 0 {
			return fmt.Errorf("config: group '%s' has no members", name)
		}
	}
	return nil
}

// RelayURL returns the relay endpoint, preferring ENSEAL_RELAY.
func (c *UserConfig) RelayURL() string {
	if v := os.Getenv("ENSEAL_RELAY"); v != "" {
		return v
	}
	return c.Relay.URL
}

// LoadUserConfig loads the user configuration from the config file. A
// missing file yields the defaults.
func LoadUserConfig() (*UserConfig, error) {
	config := &UserConfig{}
	configPath := UserEnsealSettings.ConfigFile()

	if _, err := os.Stat(configPath); err == nil {
		if err := LoadTOML(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat user config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveUserConfig saves the user configuration to the config file.
func SaveUserConfig(config *UserConfig) error {
	if err := SaveTOML(UserEnsealSettings.ConfigFile(), config); err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}
	return nil
}

// GenerateUserUUID generates a new UUID for the user.
func GenerateUserUUID() string {
	return uuid.New().String()
}

// EnsureUserConfig ensures the user configuration exists and has a UUID.
func EnsureUserConfig() (*UserConfig, error) {
	config, err := LoadUserConfig()
	if err != nil {
		return nil, err
	}

	if config.User.UUID == "" {
		config.User.UUID = GenerateUserUUID()
		if config.User.Name == "" {
			config.User.Name = UserEnsealSettings.Username
		}
		if err := SaveUserConfig(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}
