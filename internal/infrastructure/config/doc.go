// Package config handles loading and validating kettle bridge configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Loading a .env file into the process environment
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials should be set via environment variables
//     (MQTT_USERNAME, MQTT_PASSWORD) rather than the config file
//   - The config and .env files should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Kettle.MACAddress)
package config
