// Package config loads and validates the balancer configuration from a
// YAML file and environment variables.
package config
