// Package config loads the orchestrator's configuration with a fixed
// precedence: built-in defaults, then an optional YAML file, then
// environment variable overrides (AGENTCORE_* by default).
package config
