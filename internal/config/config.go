package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PathEnv names the environment variable that points at an optional YAML
// config file.
const PathEnv = "REIGN_DASH_CONFIG"

// Config holds all configuration for reign-dash.
type Config struct {
	// Backend connection settings
	BackendURI       string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Inbound message classification: "envelope" or "substring"
	Classifier string

	// Deep link applied at startup, e.g. "prod/api"
	Fragment string

	// Web UI
	WebPort       string
	AdminUsername string
	AdminPassword string

	// Persisted fragment and backend URI
	StateFile string

	// Logging
	LogLevel string // DEBUG, INFO, WARN, ERROR
}

// fileConfig is the YAML form. Timeouts are in seconds, like the
// environment variables.
type fileConfig struct {
	BackendURI       string `yaml:"backend-uri"`
	HandshakeTimeout int    `yaml:"handshake-timeout"`
	WriteTimeout     int    `yaml:"write-timeout"`
	Classifier       string `yaml:"classifier"`
	Fragment         string `yaml:"fragment"`
	WebPort          string `yaml:"web-port"`
	AdminUsername    string `yaml:"admin-username"`
	AdminPassword    string `yaml:"admin-password"`
	StateFile        string `yaml:"state-file"`
	LogLevel         string `yaml:"log-level"`
}

func defaults() fileConfig {
	return fileConfig{
		BackendURI:       "ws://localhost:33033/ws",
		HandshakeTimeout: 10,
		WriteTimeout:     10,
		Classifier:       "envelope",
		WebPort:          "8080",
		LogLevel:         "INFO",
	}
}

// Load builds the configuration from defaults, the YAML file at path (or at
// $REIGN_DASH_CONFIG when path is empty), and environment variables, each
// layer overriding the previous one.
func Load(path string) (*Config, error) {
	fc := defaults()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	handshakeSec, err := strconv.Atoi(getEnv("HANDSHAKE_TIMEOUT", strconv.Itoa(fc.HandshakeTimeout)))
	if err != nil {
		return nil, fmt.Errorf("HANDSHAKE_TIMEOUT: %w", err)
	}
	writeSec, err := strconv.Atoi(getEnv("WRITE_TIMEOUT", strconv.Itoa(fc.WriteTimeout)))
	if err != nil {
		return nil, fmt.Errorf("WRITE_TIMEOUT: %w", err)
	}

	cfg := &Config{
		BackendURI:       getEnv("REIGN_BACKEND_URI", fc.BackendURI),
		HandshakeTimeout: time.Duration(handshakeSec) * time.Second,
		WriteTimeout:     time.Duration(writeSec) * time.Second,
		Classifier:       getEnv("CLASSIFIER", fc.Classifier),
		Fragment:         getEnv("FRAGMENT", fc.Fragment),
		WebPort:          getEnv("WEB_PORT", fc.WebPort),
		AdminUsername:    getEnv("ADMIN_USERNAME", fc.AdminUsername),
		AdminPassword:    getEnv("ADMIN_PASSWORD", fc.AdminPassword),
		StateFile:        getEnv("STATE_FILE", fc.StateFile),
		LogLevel:         getEnv("LOG_LEVEL", fc.LogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late, at dial time.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURI)
	if err != nil {
		return fmt.Errorf("backend URI %q: %w", c.BackendURI, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("backend URI %q: scheme must be ws or wss", c.BackendURI)
	}
	if u.Host == "" {
		return fmt.Errorf("backend URI %q: missing host", c.BackendURI)
	}

	switch strings.ToLower(c.Classifier) {
	case "envelope", "substring":
	default:
		return fmt.Errorf("classifier %q: must be envelope or substring", c.Classifier)
	}

	if c.HandshakeTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
