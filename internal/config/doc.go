// Package config provides configuration management for bandcamp-verificator.
//
// This package handles:
//   - Loading and saving settings from JSON or TOML files
//   - Default configuration values
//   - Credential overrides from BANDCAMP_* environment variables
//   - Validation of ranges (delays, limits, ports)
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// 1-5 second random delay between codes
//	// 25 second request timeout, 3 retries
//	// Direct HTTP transport
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.toml")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//	settings.ApplyEnv(os.Getenv)
//	if err := settings.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Saving Settings
//
//	settings.MaxDelaySec = 10
//	err := settings.Save("/path/to/config.json")
package config
