package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPath           = "/etc/sensorsd.yaml"
	DefaultCheckInterval  = 20 * time.Second
	DefaultReportInterval = 60 * time.Second
	DefaultSourceType     = "hwmon"
	DefaultMaxAge         = 5 * time.Second
	DefaultMQTTTopic      = "sensors/{sensor}/alert"
	DefaultNATSSubject    = "sensors.alert"
)

// Config is the top-level daemon configuration. Fields map 1:1 to
// sensorsd.example.yaml.
type Config struct {
	// CheckInterval controls how often every watched sensor is sampled.
	CheckInterval time.Duration `yaml:"check_interval"`

	// ReportInterval controls how often status changes are reported.
	ReportInterval time.Duration `yaml:"report_interval"`

	// FailOnReadError stops the daemon when a watched sensor cannot be read.
	// By default the sensor is skipped for that cycle and the error logged.
	FailOnReadError bool `yaml:"fail_on_read_error"`

	// EnvFile is an optional dotenv file loaded before *_env references are
	// resolved.
	EnvFile string `yaml:"env_file"`

	// Source selects where sensor readings come from.
	Source SourceConfig `yaml:"source"`

	// Watches maps a node key (<device>.<kind><index>) to its limits.
	Watches map[string]Watch `yaml:"watches"`

	// Notify configures optional alert fan-out targets.
	Notify NotifyConfig `yaml:"notify"`

	// Status configures the optional read-only HTTP status endpoint.
	Status StatusConfig `yaml:"status"`
}

// Watch is the configured limit set for one sensor. Empty Low/High mean no
// limit on that side.
type Watch struct {
	// Low and High are threshold texts with an optional unit suffix,
	// e.g. "85C", "11.5V", "40".
	Low  string `yaml:"low"`
	High string `yaml:"high"`

	// Command is a shell command template run when the sensor's status
	// changes. See the alert package for the % tokens.
	Command string `yaml:"command"`
}

// SourceConfig describes the sensor source.
type SourceConfig struct {
	// Type is one of: hwmon | prometheus.
	Type string `yaml:"type"`

	// HwmonRoot overrides /sys/class/hwmon (type hwmon).
	HwmonRoot string `yaml:"hwmon_root"`

	// Endpoint is the node_exporter metrics URL (type prometheus).
	Endpoint string `yaml:"endpoint"`

	// MaxAge is how long one scrape serves reads before it is refreshed.
	MaxAge time.Duration `yaml:"max_age"`

	// Auth configures how the daemon authenticates to Endpoint.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for the metrics endpoint.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header carrying the API key (Mode == "apikey").
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username and PasswordEnv are used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return fromEnv(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return fromEnv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return fromEnv(a.PasswordEnv) }

// TLSConfig holds TLS dial options for the metrics endpoint.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// NotifyConfig holds alert fan-out targets. All are optional.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	NATS     NATSConfig      `yaml:"nats"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return fromEnv(w.URLEnv) }

// MQTTConfig publishes alert events to an MQTT broker. Disabled when Broker
// is empty.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	// Topic may contain {sensor} and {device} placeholders.
	Topic string `yaml:"topic"`
	QoS   byte   `yaml:"qos"`
}

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string { return fromEnv(m.PasswordEnv) }

// Enabled reports whether an MQTT broker is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// NATSConfig publishes alert events to a NATS subject. Disabled when URL is
// empty.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Enabled reports whether a NATS server is configured.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

// StatusConfig configures the HTTP status endpoint. Disabled when Listen is
// empty.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// Lookup returns the watch configured for a node key.
func (c *Config) Lookup(key string) (Watch, bool) {
	w, ok := c.Watches[key]
	return w, ok
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults. When EnvFile is set it is
// loaded into the process environment; variables already set win.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyFallbacks(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil {
			return nil, fmt.Errorf("config: load env file %q: %w", cfg.EnvFile, err)
		}
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		CheckInterval:  DefaultCheckInterval,
		ReportInterval: DefaultReportInterval,
		Source: SourceConfig{
			Type:   DefaultSourceType,
			MaxAge: DefaultMaxAge,
		},
	}
}

// applyFallbacks fills defaults inside optional sections that only make sense
// once the section itself is present.
func applyFallbacks(cfg *Config) {
	if cfg.Notify.MQTT.Enabled() {
		if cfg.Notify.MQTT.Topic == "" {
			cfg.Notify.MQTT.Topic = DefaultMQTTTopic
		}
		if cfg.Notify.MQTT.ClientID == "" {
			cfg.Notify.MQTT.ClientID = "sensorsd"
		}
	}
	if cfg.Notify.NATS.Enabled() && cfg.Notify.NATS.Subject == "" {
		cfg.Notify.NATS.Subject = DefaultNATSSubject
	}
}

// validate checks required fields and structural constraints. Threshold
// texts are checked later against the sensor kind they apply to.
func validate(cfg *Config) error {
	if cfg.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be positive")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report_interval must be positive")
	}
	switch cfg.Source.Type {
	case "hwmon":
	case "prometheus":
		if cfg.Source.Endpoint == "" {
			return fmt.Errorf("source.endpoint is required for type prometheus")
		}
		if cfg.Source.MaxAge < 0 {
			return fmt.Errorf("source.max_age must not be negative")
		}
	default:
		return fmt.Errorf("source: unknown type %q", cfg.Source.Type)
	}
	switch cfg.Source.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("source: unknown auth mode %q", cfg.Source.Auth.Mode)
	}
	for key := range cfg.Watches {
		if strings.Count(key, ".") != 1 || strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
			return fmt.Errorf("watches: malformed sensor key %q, want <device>.<kind><index>", key)
		}
	}
	for i, wh := range cfg.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("notify.webhooks[%d]: url_env is required", i)
		}
	}
	if cfg.Notify.MQTT.QoS > 2 {
		return fmt.Errorf("notify.mqtt.qos must be 0, 1 or 2")
	}
	return nil
}

func fromEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
