package server

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tkrehbiel/inboxlace/server/receiver"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultCacheTTL     = time.Hour
	envPrefix           = "INBOXLACE_"
)

type serverConfig struct {
	HostName    string `json:"host" yaml:"host"`
	Certificate string `json:"certificate" yaml:"certificate"`
	PrivateKey  string `json:"privatekey" yaml:"privatekey"`
	Port        int    `json:"port" yaml:"port"`
	AcceptAll   bool   `json:"accept_all" yaml:"accept_all"` // ignore Accept headers, for debugging
	AutoAccept  bool   `json:"auto_accept" yaml:"auto_accept"`

	MaxBodyBytes               int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
	FetchTimeoutSeconds        int    `json:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
	MaxFetchDepth              int    `json:"max_fetch_depth" yaml:"max_fetch_depth"`
	MentionGateDirectCommunity bool   `json:"mention_gate_direct_community" yaml:"mention_gate_direct_community"`
	CacheTTLSeconds            int    `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	LogLevel                   string `json:"log_level" yaml:"log_level"`
}

func (s serverConfig) useTLS() bool {
	return s.Certificate != "" && s.PrivateKey != ""
}

func (s serverConfig) maxBodyBytes() int64 {
	if s.MaxBodyBytes <= 0 {
		return defaultMaxBodyBytes
	}
	return s.MaxBodyBytes
}

func (s serverConfig) fetchTimeout() time.Duration {
	if s.FetchTimeoutSeconds <= 0 {
		return receiver.DefaultFetchTimeout
	}
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

func (s serverConfig) cacheTTL() time.Duration {
	if s.CacheTTLSeconds <= 0 {
		return defaultCacheTTL
	}
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// receiverOptions are the policy knobs of the inbound pipeline.
func (s serverConfig) receiverOptions() receiver.Options {
	return receiver.Options{
		MaxFetchDepth:              s.MaxFetchDepth,
		FetchTimeout:               s.fetchTimeout(),
		MentionGateDirectCommunity: s.MentionGateDirectCommunity,
	}
}

type databaseConfig struct {
	Driver string `json:"driver" yaml:"driver"` // sqlite or sqlite3
	DSN    string `json:"dsn" yaml:"dsn"`
}

type userConfig struct {
	UID         int64  `json:"uid" yaml:"uid"`
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	PubKeyFile  string `json:"pubKey,omitempty" yaml:"pubKey,omitempty"`
	PrivKeyFile string `json:"privKey,omitempty" yaml:"privKey,omitempty"`
}

type Config struct {
	URL      string         `json:"url" yaml:"url"` // public-facing URL
	Server   serverConfig   `json:"server" yaml:"server"`
	Database databaseConfig `json:"database" yaml:"database"`
	Users    []userConfig   `json:"users" yaml:"users"`
}

// Validate checks the settings the service can't start without.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config url [%s] is not an absolute url", c.URL)
	}
	seen := make(map[int64]bool)
	for _, user := range c.Users {
		if user.Name == "" {
			return fmt.Errorf("user %d has no name", user.UID)
		}
		if user.UID <= 0 {
			return fmt.Errorf("user [%s] needs a positive uid", user.Name)
		}
		if seen[user.UID] {
			return fmt.Errorf("uid %d is used twice", user.UID)
		}
		seen[user.UID] = true
	}
	return nil
}

// ReadConfig parses a JSON config.
func ReadConfig(b []byte) (config Config, err error) {
	if uErr := json.Unmarshal(b, &config); uErr != nil {
		return config, uErr
	}
	return config, nil
}

// ReadYAMLConfig parses a YAML config.
func ReadYAMLConfig(b []byte) (config Config, err error) {
	if uErr := yaml.Unmarshal(b, &config); uErr != nil {
		return config, uErr
	}
	return config, nil
}

// LoadConfig reads the config file, JSON or YAML by extension, then
// applies INBOXLACE_* environment overrides. A .env file next to the
// working directory is loaded into the environment first if present.
func LoadConfig(filename string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	b, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		cfg, err = ReadYAMLConfig(b)
	default:
		cfg, err = ReadConfig(b)
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing config [%s]: %w", filename, err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides the deployment specific settings from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"URL":         &c.URL,
		"HOST":        &c.Server.HostName,
		"CERTIFICATE": &c.Server.Certificate,
		"PRIVATEKEY":  &c.Server.PrivateKey,
		"DB_DRIVER":   &c.Database.Driver,
		"DB_DSN":      &c.Database.DSN,
		"LOG_LEVEL":   &c.Server.LogLevel,
	}
	for name, field := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*field = v
		}
	}
	if v, ok := lookup(envPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		c.Server.Port = port
	}
	return nil
}
