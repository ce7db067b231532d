package configs

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultAddress            = ":4443"
	defaultMaxChannels        = 100
	defaultChannelTTL         = 5 * time.Minute
	defaultSweepInterval      = 5 * time.Second
	defaultMaxPayloadBytes    = 1 << 20
	defaultRateLimitPerMinute = 10
	defaultTombstoneLimit     = 10000
	defaultHandshakeTimeout   = 10 * time.Second
	defaultLogLevel           = "NOTICE"
)

// ServerConfig is the relay server configuration.
type ServerConfig struct {
	Server  *Server
	Logging *Logging
	Metrics *Metrics
}

// Server is the relay listener and channel manager configuration.
type Server struct {
	// Address is the host:port to listen on.
	Address string

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// MaxChannels caps concurrent channels.
	MaxChannels int

	// ChannelTTL is the lifetime of every channel.
	ChannelTTL time.Duration

	// SweepInterval is how often expired channels are collected.
	SweepInterval time.Duration

	// MaxPayloadBytes caps a single websocket message.
	MaxPayloadBytes int64

	// RateLimitPerMinute caps new connections per client address. A
	// negative value disables rate limiting.
	RateLimitPerMinute int

	// TombstoneLimit bounds how many closed channel ids are remembered.
	TombstoneLimit int

	// HandshakeTimeout bounds the wait for a client's open frame.
	HandshakeTimeout time.Duration
}

func (sCfg *Server) applyDefaults() {
	if sCfg.Address == "" {
		sCfg.Address = defaultAddress
	}
	if sCfg.MaxChannels <= 0 {
		sCfg.MaxChannels = defaultMaxChannels
	}
	if sCfg.ChannelTTL <= 0 {
		sCfg.ChannelTTL = defaultChannelTTL
	}
	if sCfg.SweepInterval <= 0 {
		sCfg.SweepInterval = defaultSweepInterval
	}
	if sCfg.MaxPayloadBytes <= 0 {
		sCfg.MaxPayloadBytes = defaultMaxPayloadBytes
	}
	if sCfg.RateLimitPerMinute == 0 {
		sCfg.RateLimitPerMinute = defaultRateLimitPerMinute
	}
	if sCfg.TombstoneLimit <= 0 {
		sCfg.TombstoneLimit = defaultTombstoneLimit
	}
	if sCfg.HandshakeTimeout <= 0 {
		sCfg.HandshakeTimeout = defaultHandshakeTimeout
	}
}

func (sCfg *Server) validate() error {
	if _, _, err := net.SplitHostPort(sCfg.Address); err != nil {
		return fmt.Errorf("config: Server: Address '%v' is invalid: %v", sCfg.Address, err)
	}
	if (sCfg.TLSCertFile == "") != (sCfg.TLSKeyFile == "") {
		return errors.New("config: Server: TLSCertFile and TLSKeyFile must be set together")
	}
	if sCfg.SweepInterval > sCfg.ChannelTTL {
		return fmt.Errorf("config: Server: SweepInterval %v exceeds ChannelTTL %v", sCfg.SweepInterval, sCfg.ChannelTTL)
	}
	return nil
}

// TLSEnabled reports whether the listener serves TLS.
func (sCfg *Server) TLSEnabled() bool {
	return sCfg.TLSCertFile != "" && sCfg.TLSKeyFile != ""
}

// Logging is the relay logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl
	return nil
}

// Metrics is the relay metrics configuration.
type Metrics struct {
	// Enable serves prometheus metrics at /metrics.
	Enable bool
}

// DefaultServerConfig returns a validated configuration with every default.
func DefaultServerConfig() *ServerConfig {
	cfg := &ServerConfig{}
	if err := cfg.FixupAndValidate(); err != nil {
		panic("BUG: default server config is invalid: " + err.Error())
	}
	return cfg
}

// FixupAndValidate applies defaults to unset values and validates the
// configuration.
func (cfg *ServerConfig) FixupAndValidate() error {
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}

	cfg.Server.applyDefaults()
	if err := cfg.Server.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// LoadServerConfig parses and validates the provided buffer as a relay
// config file body.
func LoadServerConfig(b []byte) (*ServerConfig, error) {
	cfg := new(ServerConfig)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadServerConfigFile loads, parses and validates a relay config file.
func LoadServerConfigFile(f string) (*ServerConfig, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return LoadServerConfig(b)
}
