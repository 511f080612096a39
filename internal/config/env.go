package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseString reads a string from an environment variable or returns the default.
func ParseString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// ParseInt reads an int from an environment variable or returns the default.
func ParseInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ParseDuration reads a time.Duration from an environment variable or returns the default.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ParseFloat reads a float64 from an environment variable or returns the default.
func ParseFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
