// Package config loads the server's settings from defaults, an optional
// config.yaml and IMGBATCH_ environment variables, and validates them
// before any component starts.
package config
