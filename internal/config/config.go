package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/lightswitch/internal/hue"
	"github.com/dokzlo13/lightswitch/internal/input"
)

// Input sources
const (
	SourceSSE     = "sse"
	SourceMQTT    = "mqtt"
	SourceGPIO    = "gpio"
	SourceWebhook = "webhook"
)

// Input modes
const (
	ModeEdges  = "edges"  // raw down/up edges, classified locally
	ModeNative = "native" // pushes already classified by the device
)

// Single-click actions
const (
	ActionToggleGroup = "toggle_group"
	ActionToggleLight = "toggle_light"
)

// MaxScenes is the number of scene slots (double and triple click)
const MaxScenes = 2

// Config represents the application configuration
type Config struct {
	Hue             HueConfig      `yaml:"hue"`
	Gesture         GestureConfig  `yaml:"gesture"`
	Ramp            RampConfig     `yaml:"ramp"`
	Actions         ActionsConfig  `yaml:"actions"`
	Input           InputConfig    `yaml:"input"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	HTTP            HTTPConfig     `yaml:"http"`
	Log             LogConfig      `yaml:"log"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string   `yaml:"bridge"` // Static address, discovered when empty
	Token        string   `yaml:"token"`
	Timeout      Duration `yaml:"timeout"`       // HTTP timeout for Hue API requests
	DiscoveryURL string   `yaml:"discovery_url"` // Empty uses the huego discovery client

	Rooms  []string `yaml:"rooms"`
	Zones  []string `yaml:"zones"`
	Lights []string `yaml:"lights"`
	Scenes []string `yaml:"scenes"`

	// Event stream reconnect settings
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between reconnects (default: 1s)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between reconnects (default: 2m)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
	MaxReconnects   int      `yaml:"max_reconnects"`    // Max reconnect attempts, 0 = infinite (default: 0)
}

// GestureConfig contains click classification timers
type GestureConfig struct {
	ClickTimeout       Duration `yaml:"click_timeout"`
	LongPressThreshold Duration `yaml:"long_press_threshold"`
}

// RampConfig contains long-press dimming settings
type RampConfig struct {
	Interval Duration `yaml:"interval"`
	Step     int      `yaml:"step"` // Brightness percent per tick
}

// ActionsConfig selects what gestures do
type ActionsConfig struct {
	Single string `yaml:"single"`
}

// InputConfig selects the button source
type InputConfig struct {
	Source  string        `yaml:"source"`
	Mode    string        `yaml:"mode"`
	Channel string        `yaml:"channel"` // Events from other channels are ignored
	MQTT    MQTTConfig    `yaml:"mqtt"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// MQTTConfig contains MQTT input settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// GPIOConfig contains GPIO input settings
type GPIOConfig struct {
	Chip      string   `yaml:"chip"`
	Offset    int      `yaml:"offset"`
	ActiveLow bool     `yaml:"active_low"`
	PullUp    bool     `yaml:"pull_up"`
	Debounce  Duration `yaml:"debounce"`
}

// WebhookConfig contains webhook input settings
type WebhookConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"` // Empty disables the gesture ledger
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// HTTPConfig contains the status server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// GroupOwner returns the configured owner. Rooms take priority over zones;
// nil when neither is set.
func (c *Config) GroupOwner() *hue.Owner {
	if len(c.Hue.Rooms) > 0 && c.Hue.Rooms[0] != "" {
		return &hue.Owner{Kind: hue.OwnerRoom, ID: c.Hue.Rooms[0]}
	}
	if len(c.Hue.Zones) > 0 && c.Hue.Zones[0] != "" {
		return &hue.Owner{Kind: hue.OwnerZone, ID: c.Hue.Zones[0]}
	}
	return nil
}

// Light returns the light used in single-light mode, or "".
func (c *Config) Light() string {
	if len(c.Hue.Lights) == 0 {
		return ""
	}
	return c.Hue.Lights[0]
}

// Scene returns the scene in slot i, or "" when it is not configured.
func (c *Config) Scene(i int) string {
	if i < 0 || i >= len(c.Hue.Scenes) {
		return ""
	}
	return c.Hue.Scenes[i]
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(10 * time.Second)
	}
	if cfg.Hue.MinRetryBackoff == 0 {
		cfg.Hue.MinRetryBackoff = Duration(1 * time.Second)
	}
	if cfg.Hue.MaxRetryBackoff == 0 {
		cfg.Hue.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if cfg.Hue.RetryMultiplier == 0 {
		cfg.Hue.RetryMultiplier = 2.0
	}

	// Gesture and ramp defaults
	if cfg.Gesture.ClickTimeout == 0 {
		cfg.Gesture.ClickTimeout = Duration(400 * time.Millisecond)
	}
	if cfg.Gesture.LongPressThreshold == 0 {
		cfg.Gesture.LongPressThreshold = Duration(800 * time.Millisecond)
	}
	if cfg.Ramp.Interval == 0 {
		cfg.Ramp.Interval = Duration(500 * time.Millisecond)
	}
	if cfg.Ramp.Step == 0 {
		cfg.Ramp.Step = 25
	}
	if cfg.Actions.Single == "" {
		cfg.Actions.Single = ActionToggleGroup
	}

	// Input defaults
	if cfg.Input.Source == "" {
		cfg.Input.Source = SourceSSE
	}
	if cfg.Input.Mode == "" {
		cfg.Input.Mode = ModeEdges
	}
	if cfg.Input.Channel == "" {
		switch cfg.Input.Source {
		case SourceGPIO:
			cfg.Input.Channel = input.GPIOChannel(cfg.Input.GPIO.Offset)
		case SourceMQTT:
			cfg.Input.Channel = "input:0"
		case SourceWebhook:
			cfg.Input.Channel = "button"
		}
	}
	if cfg.Input.GPIO.Chip == "" {
		cfg.Input.GPIO.Chip = "gpiochip0"
	}
	if cfg.Input.Webhook.QueueSize == 0 {
		cfg.Input.Webhook.QueueSize = 16
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9090
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate reports every invalid setting. A missing group owner is not an
// error here; it makes group commands fail at runtime.
func (c *Config) Validate() error {
	var errs []error

	switch c.Input.Source {
	case SourceSSE, SourceMQTT, SourceGPIO, SourceWebhook:
	default:
		errs = append(errs, fmt.Errorf("input.source: unknown source %q", c.Input.Source))
	}
	switch c.Input.Mode {
	case ModeEdges, ModeNative:
	default:
		errs = append(errs, fmt.Errorf("input.mode: unknown mode %q", c.Input.Mode))
	}
	switch c.Actions.Single {
	case ActionToggleGroup, ActionToggleLight:
	default:
		errs = append(errs, fmt.Errorf("actions.single: unknown action %q", c.Actions.Single))
	}

	if c.Input.Channel == "" {
		errs = append(errs, errors.New("input.channel: required for the sse source (button resource id)"))
	}
	if c.Input.Source == SourceMQTT && (c.Input.MQTT.Broker == "" || c.Input.MQTT.Topic == "") {
		errs = append(errs, errors.New("input.mqtt: broker and topic are required"))
	}
	if c.Input.MQTT.QoS < 0 || c.Input.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("input.mqtt.qos: must be 0, 1 or 2, got %d", c.Input.MQTT.QoS))
	}
	if c.Input.Source == SourceWebhook && !c.HTTP.Enabled {
		errs = append(errs, errors.New("input.source: webhook requires http.enabled"))
	}

	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"gesture.click_timeout", c.Gesture.ClickTimeout},
		{"gesture.long_press_threshold", c.Gesture.LongPressThreshold},
		{"ramp.interval", c.Ramp.Interval},
		{"hue.timeout", c.Hue.Timeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", d.name))
		}
	}
	if c.Ramp.Step < 1 || c.Ramp.Step > 99 {
		errs = append(errs, fmt.Errorf("ramp.step: must be within 1-99, got %d", c.Ramp.Step))
	}
	if len(c.Hue.Scenes) > MaxScenes {
		errs = append(errs, fmt.Errorf("hue.scenes: at most %d scenes, got %d", MaxScenes, len(c.Hue.Scenes)))
	}

	return errors.Join(errs...)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(s string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
