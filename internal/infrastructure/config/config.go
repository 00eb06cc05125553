package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the kettle bridge.
// Configuration is loaded from an optional YAML file and can be overridden by
// environment variables (optionally sourced from a .env file).
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Kettle  KettleConfig  `yaml:"kettle"`
	FSR     FSRConfig     `yaml:"fsr"`
	API     APIConfig     `yaml:"api"`

	// Source is the path the configuration was read from, or empty when no
	// file was found and only defaults and environment were used.
	Source string `yaml:"-"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// RetainStatus publishes status topics as retained messages so new
	// subscribers see the last known kettle state immediately.
	RetainStatus bool `yaml:"retain_status"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// ClientIDPrefix is combined with a per-session suffix, since publish and
	// subscribe sessions are independent broker connections.
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// KettleConfig contains settings for the Bluetooth kettle.
type KettleConfig struct {
	// MACAddress is the fixed hardware address of the kettle.
	MACAddress string `yaml:"mac_address"`

	// PollInterval is the telemetry publish interval in seconds.
	PollInterval int `yaml:"poll_interval"`

	// ConnectTimeout bounds discovery plus connect, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
}

// FSRConfig contains settings for the force-sensitive resistor circuit.
type FSRConfig struct {
	Enabled bool `yaml:"enabled"`

	// Chip is the GPIO character device name (e.g. "gpiochip0").
	Chip string `yaml:"chip"`

	// Pin is the line offset wired to the RC circuit.
	Pin int `yaml:"pin"`

	// SettleDelayMS is how long the pin is held low before re-arming.
	SettleDelayMS int `yaml:"settle_delay_ms"`

	// FillLevels maps the average inter-edge interval to a fill level.
	// Left empty the classifier always reports FULL.
	FillLevels []FillLevelThreshold `yaml:"fill_levels"`
}

// FillLevelThreshold is one row of the fill-level table: intervals up to and
// including MaxInterval map to Level.
type FillLevelThreshold struct {
	MaxInterval float64 `yaml:"max_interval"`
	Level       string  `yaml:"level"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DefaultEnvFile is the dotenv file consulted when KETTLEBRIDGE_ENV_FILE is unset.
const DefaultEnvFile = ".env"

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if the file exists (override defaults)
//  3. Variables from the dotenv file, if present (never override the real environment)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern KETTLEBRIDGE_SECTION_KEY. The
// unprefixed names LOG_LEVEL, MQTT_HOST, MQTT_USERNAME and MQTT_PASSWORD are
// also honoured; the prefixed form wins when both are set.
//
// Parameters:
//   - path: Path to the YAML configuration file (may be empty)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Environment-only deployments have no config file.
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
			cfg.Source = path
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads KETTLEBRIDGE_ENV_FILE (default .env) into the process
// environment. A missing file is not an error.
func loadDotEnv() error {
	path := os.Getenv("KETTLEBRIDGE_ENV_FILE")
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           1883,
				ClientIDPrefix: "kettlebridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Kettle: KettleConfig{
			MACAddress:     "00:1C:97:19:49:4D",
			PollInterval:   5,
			ConnectTimeout: 30,
		},
		FSR: FSRConfig{
			Enabled:       true,
			Chip:          "gpiochip0",
			Pin:           4,
			SettleDelayMS: 100,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// lookupEnv returns the first non-empty value among the given variable names.
func lookupEnv(names ...string) (string, bool) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v, true
		}
	}
	return "", false
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KETTLEBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Logging
	if v, ok := lookupEnv("KETTLEBRIDGE_LOG_LEVEL", "LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := lookupEnv("KETTLEBRIDGE_LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}

	// MQTT
	if v, ok := lookupEnv("KETTLEBRIDGE_MQTT_HOST", "MQTT_HOST"); ok {
		cfg.MQTT.Broker.Host = v
	}
	if v, ok := lookupEnv("KETTLEBRIDGE_MQTT_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KETTLEBRIDGE_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v, ok := lookupEnv("KETTLEBRIDGE_MQTT_USERNAME", "MQTT_USERNAME"); ok {
		cfg.MQTT.Auth.Username = v
	}
	if v, ok := lookupEnv("KETTLEBRIDGE_MQTT_PASSWORD", "MQTT_PASSWORD"); ok {
		cfg.MQTT.Auth.Password = v
	}

	// Kettle
	if v, ok := lookupEnv("KETTLEBRIDGE_KETTLE_MAC_ADDRESS"); ok {
		cfg.Kettle.MACAddress = v
	}

	// FSR
	if v, ok := lookupEnv("KETTLEBRIDGE_FSR_CHIP"); ok {
		cfg.FSR.Chip = v
	}
	if v, ok := lookupEnv("KETTLEBRIDGE_FSR_PIN"); ok {
		pin, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KETTLEBRIDGE_FSR_PIN: %w", err)
		}
		cfg.FSR.Pin = pin
	}
	if v, ok := lookupEnv("KETTLEBRIDGE_FSR_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KETTLEBRIDGE_FSR_ENABLED: %w", err)
		}
		cfg.FSR.Enabled = enabled
	}

	// API
	if v, ok := lookupEnv("KETTLEBRIDGE_API_HOST"); ok {
		cfg.API.Host = v
	}

	return nil
}

// validFillLevels are the level names accepted in fsr.fill_levels.
var validFillLevels = map[string]bool{"LOW": true, "MEDIUM": true, "FULL": true}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (set MQTT_HOST)")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.ClientIDPrefix == "" {
		errs = append(errs, "mqtt.broker.client_id_prefix is required")
	}

	// Kettle validation
	if _, err := net.ParseMAC(c.Kettle.MACAddress); err != nil {
		errs = append(errs, fmt.Sprintf("kettle.mac_address %q is not a valid hardware address", c.Kettle.MACAddress))
	}
	if c.Kettle.PollInterval < 1 {
		errs = append(errs, "kettle.poll_interval must be at least 1 second")
	}
	if c.Kettle.ConnectTimeout < 1 {
		errs = append(errs, "kettle.connect_timeout must be at least 1 second")
	}

	// FSR validation
	if c.FSR.Enabled {
		if c.FSR.Chip == "" {
			errs = append(errs, "fsr.chip is required when fsr is enabled")
		}
		if c.FSR.Pin < 0 {
			errs = append(errs, "fsr.pin must not be negative")
		}
		if c.FSR.SettleDelayMS < 1 {
			errs = append(errs, "fsr.settle_delay_ms must be at least 1")
		}
	}
	for i, t := range c.FSR.FillLevels {
		if !validFillLevels[strings.ToUpper(t.Level)] {
			errs = append(errs, fmt.Sprintf("fsr.fill_levels[%d].level %q must be LOW, MEDIUM or FULL", i, t.Level))
		}
		if i > 0 && t.MaxInterval <= c.FSR.FillLevels[i-1].MaxInterval {
			errs = append(errs, fmt.Sprintf("fsr.fill_levels[%d].max_interval must be greater than the previous row", i))
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPollInterval returns the telemetry publish interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Kettle.PollInterval) * time.Second
}

// GetConnectTimeout returns the kettle connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Kettle.ConnectTimeout) * time.Second
}

// GetSettleDelay returns the FSR settle delay as a Duration.
func (c *Config) GetSettleDelay() time.Duration {
	return time.Duration(c.FSR.SettleDelayMS) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
