// Package config loads the gateway's configuration surface from a YAML
// file (gopkg.in/yaml.v3, grounded on bureau-foundation-bureau's own use
// of the same library), overlaid by CLI flags, and republishes it
// behind an atomic pointer so every reader sees an immutable snapshot
// even while a file-watcher hot-reloads it in the background.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sammck-go/guacgw/internal/obslog"
	"github.com/sammck-go/guacgw/internal/token"
)

// ClientPolicy is the per-type argument policy: client.defaultArguments[type]
// and client.unencryptedArguments[type].
type ClientPolicy struct {
	DefaultArguments     map[string]string `yaml:"defaultArguments"`
	UnencryptedArguments []string          `yaml:"unencryptedArguments"`
}

// WebSocketConfig covers the websocket.* options.
type WebSocketConfig struct {
	Port             int `yaml:"port"`
	MaxInactivityMin int `yaml:"maxInactivityMin"`
}

// GuacdConfig covers the guacd.* options.
type GuacdConfig struct {
	Hostname  string `yaml:"hostname"`
	Port      int    `yaml:"port"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

// ScreenConfig supplies the width/height/dpi fallbacks used when the
// merged arguments omit them (commonly 1024, 768, 96).
type ScreenConfig struct {
	Width  string `yaml:"width"`
	Height string `yaml:"height"`
	DPI    string `yaml:"dpi"`
}

// IntakeConfig tunes the worker pool and backpressure surface; it is
// grouped under its own key so operators can tune it independently of
// the core surface.
type IntakeConfig struct {
	Workers          int     `yaml:"workers"`
	QueueDepth       int     `yaml:"queueDepth"`
	MaxSessionsPerSec float64 `yaml:"maxSessionsPerSec"`
}

// ListenerConfig configures the process-level HTTP listener, including
// the optional PROXY-protocol wrap.
type ListenerConfig struct {
	ProxyProtocol bool `yaml:"proxyProtocol"`
}

// LoggingConfig selects the logging backend's verbosity and encoder.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the gateway's full configuration surface. A *Config is
// immutable after Load returns it; reloads build and publish a brand
// new one.
type Config struct {
	WebSocket WebSocketConfig         `yaml:"websocket"`
	Guacd     GuacdConfig             `yaml:"guacd"`
	Password  string                  `yaml:"password"`
	KDFMode   token.KDFMode           `yaml:"kdfMode"`
	Screen    ScreenConfig            `yaml:"screen"`
	Intake    IntakeConfig            `yaml:"intake"`
	Listener  ListenerConfig          `yaml:"listener"`
	Logging   LoggingConfig           `yaml:"logging"`
	Client    map[string]ClientPolicy `yaml:"client"`
}

// Defaults returns a Config with every non-zero-value default filled in
// explicitly ("commonly 1024, 768, 96" for screen, etc.).
func Defaults() *Config {
	return &Config{
		WebSocket: WebSocketConfig{
			Port:             8080,
			MaxInactivityMin: 10,
		},
		Guacd: GuacdConfig{
			Hostname:  "127.0.0.1",
			Port:      4822,
			TimeoutMs: 10000,
		},
		KDFMode: token.KDFSHA256,
		Screen: ScreenConfig{
			Width:  "1024",
			Height: "768",
			DPI:    "96",
		},
		Intake: IntakeConfig{
			Workers:           16,
			QueueDepth:        256,
			MaxSessionsPerSec: 50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Client: map[string]ClientPolicy{},
	}
}

// Load reads and parses the YAML file at path, overlaying it onto
// Defaults(). A missing file is not an error; Defaults() alone is
// returned so the gateway can run from flags alone in simple
// deployments.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Policy converts the YAML-shaped Client map into the token.Policy
// shape internal/token.MergeArguments consumes.
func (c *Config) Policy() token.Policy {
	policy := make(token.Policy, len(c.Client))
	for typ, cp := range c.Client {
		allow := make(map[string]bool, len(cp.UnencryptedArguments))
		for _, key := range cp.UnencryptedArguments {
			allow[key] = true
		}
		policy[typ] = token.ArgumentPolicy{
			DefaultArguments:     cp.DefaultArguments,
			UnencryptedArguments: allow,
		}
	}
	return policy
}

// LogLevel parses the configured logging level into an obslog.LogLevel.
func (c *Config) LogLevel() obslog.LogLevel {
	return obslog.StringToLogLevel(c.Logging.Level)
}
