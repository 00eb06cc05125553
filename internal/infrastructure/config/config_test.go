package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolateEnv points the dotenv loader at a file that does not exist so a
// developer's .env cannot leak into the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KETTLEBRIDGE_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	for _, name := range []string{
		"MQTT_HOST", "KETTLEBRIDGE_MQTT_HOST", "KETTLEBRIDGE_MQTT_PORT",
		"KETTLEBRIDGE_KETTLE_MAC_ADDRESS", "KETTLEBRIDGE_FSR_PIN", "KETTLEBRIDGE_FSR_ENABLED",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	isolateEnv(t)

	content := `
logging:
  level: "debug"
mqtt:
  broker:
    host: "broker.local"
    port: 1884
    client_id_prefix: "kitchen"
  qos: 0
kettle:
  mac_address: "AA:BB:CC:DD:EE:FF"
  poll_interval: 10
fsr:
  pin: 17
  fill_levels:
    - max_interval: 1500
      level: low
    - max_interval: 3000
      level: MEDIUM
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Source != configPath {
		t.Errorf("Source = %q, want %q", cfg.Source, configPath)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Broker.ClientIDPrefix != "kitchen" {
		t.Errorf("MQTT.Broker.ClientIDPrefix = %q, want %q", cfg.MQTT.Broker.ClientIDPrefix, "kitchen")
	}
	if cfg.Kettle.MACAddress != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Kettle.MACAddress = %q, want %q", cfg.Kettle.MACAddress, "AA:BB:CC:DD:EE:FF")
	}
	if cfg.GetPollInterval() != 10*time.Second {
		t.Errorf("GetPollInterval() = %v, want 10s", cfg.GetPollInterval())
	}
	if cfg.FSR.Pin != 17 {
		t.Errorf("FSR.Pin = %d, want 17", cfg.FSR.Pin)
	}
	if len(cfg.FSR.FillLevels) != 2 {
		t.Fatalf("len(FSR.FillLevels) = %d, want 2", len(cfg.FSR.FillLevels))
	}
	// Fields not present in the file keep their defaults.
	if cfg.FSR.Chip != "gpiochip0" {
		t.Errorf("FSR.Chip = %q, want default %q", cfg.FSR.Chip, "gpiochip0")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q, want empty", cfg.Source)
	}
	if cfg.Kettle.MACAddress != "00:1C:97:19:49:4D" {
		t.Errorf("Kettle.MACAddress = %q, want default", cfg.Kettle.MACAddress)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolateEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	isolateEnv(t)

	content := `
kettle:
  mac_address: "not-a-mac"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for bad MAC address, got nil")
	}
	if !strings.Contains(err.Error(), "kettle.mac_address") {
		t.Errorf("error %q should mention kettle.mac_address", err)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	const key = "KETTLEBRIDGE_KETTLE_MAC_ADDRESS"
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s already set in the environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	envPath := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envPath, []byte(key+"=11:22:33:44:55:66\n"), 0600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("KETTLEBRIDGE_ENV_FILE", envPath)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Kettle.MACAddress != "11:22:33:44:55:66" {
		t.Errorf("Kettle.MACAddress = %q, want value from env file", cfg.Kettle.MACAddress)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "empty broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid MAC address",
			mutate:  func(c *Config) { c.Kettle.MACAddress = "kettle" },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Kettle.PollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "fsr enabled without chip",
			mutate:  func(c *Config) { c.FSR.Chip = "" },
			wantErr: true,
		},
		{
			name: "fsr disabled without chip",
			mutate: func(c *Config) {
				c.FSR.Enabled = false
				c.FSR.Chip = ""
			},
			wantErr: false,
		},
		{
			name: "unknown fill level",
			mutate: func(c *Config) {
				c.FSR.FillLevels = []FillLevelThreshold{{MaxInterval: 10, Level: "HALF"}}
			},
			wantErr: true,
		},
		{
			name: "unsorted fill levels",
			mutate: func(c *Config) {
				c.FSR.FillLevels = []FillLevelThreshold{
					{MaxInterval: 20, Level: "LOW"},
					{MaxInterval: 10, Level: "MEDIUM"},
				}
			},
			wantErr: true,
		},
		{
			name: "api disabled ignores port",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		FSR: FSRConfig{SettleDelayMS: 100},
	}

	if got := cfg.API.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.API.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.API.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetSettleDelay(); got != 100*time.Millisecond {
		t.Errorf("GetSettleDelay() = %v, want 100ms", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("KETTLEBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("MQTT_HOST", "mqtt.example.com")
	t.Setenv("KETTLEBRIDGE_MQTT_PORT", "8883")
	t.Setenv("MQTT_USERNAME", "testuser")
	t.Setenv("MQTT_PASSWORD", "testpass")
	t.Setenv("KETTLEBRIDGE_MQTT_HOST", "")
	t.Setenv("KETTLEBRIDGE_MQTT_USERNAME", "")
	t.Setenv("KETTLEBRIDGE_MQTT_PASSWORD", "")
	t.Setenv("KETTLEBRIDGE_FSR_PIN", "22")
	t.Setenv("KETTLEBRIDGE_FSR_ENABLED", "false")
	t.Setenv("KETTLEBRIDGE_API_HOST", "0.0.0.0")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.FSR.Pin != 22 {
		t.Errorf("FSR.Pin = %d, want 22", cfg.FSR.Pin)
	}
	if cfg.FSR.Enabled {
		t.Error("FSR.Enabled = true, want false")
	}
	if cfg.API.Host != "0.0.0.0" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "0.0.0.0")
	}
}

func TestApplyEnvOverrides_PrefixedWins(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("KETTLEBRIDGE_LOG_LEVEL", "info")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestApplyEnvOverrides_BadNumber(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("KETTLEBRIDGE_FSR_PIN", "four")

	if err := applyEnvOverrides(cfg); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric pin")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Logging.Level != "warn" {
		t.Errorf("defaultConfig Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.FSR.Pin != 4 {
		t.Errorf("defaultConfig FSR.Pin = %d, want 4", cfg.FSR.Pin)
	}
	if cfg.GetPollInterval() != 5*time.Second {
		t.Errorf("defaultConfig poll interval = %v, want 5s", cfg.GetPollInterval())
	}
	if len(cfg.FSR.FillLevels) != 0 {
		t.Errorf("defaultConfig should ship without fill level thresholds, got %d", len(cfg.FSR.FillLevels))
	}
}
