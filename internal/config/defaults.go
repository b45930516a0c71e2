package config

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "./smartsched.yaml"

// Default is the configuration used when no file exists: a local file
// store, console logging and the sweep turned off.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Driver: "file", Path: "./data/smartsched.json"},
		Logging: LoggingConfig{Level: "info", Console: true},
		Sweep:   SweepConfig{Enabled: false, Schedule: "0 * * * *", Timeout: "2m"},
	}
}
