// Package config loads and validates the matcher configuration.
//
// Configuration is read from a YAML file and validated using struct tags
// before any data is touched. Missing or out-of-range matching parameters
// fail the load.
package config
