// Package config loads, validates, and defaults podbay's TOML configuration.
package config
