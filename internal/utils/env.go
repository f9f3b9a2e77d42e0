package utils

import (
	"os"
	"strconv"
	"strings"

	"github.com/padak/ceo-xmass-review/internal/logger"
)

// GetEnv returns the value of key, or fallback when the variable is unset
// or blank.
func GetEnv(key, fallback string, log *logger.Logger) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

// GetEnvAsInt parses key as an integer. Unset or unparseable values fall
// back to the default; parse failures are logged so typos in deployment
// manifests do not pass silently.
func GetEnvAsInt(key string, fallback int, log *logger.Logger) int {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		if log != nil {
			log.Warn("ignoring non-integer env value", "key", key, "value", v)
		}
		return fallback
	}
	return n
}

// GetEnvAsBool parses key with strconv.ParseBool semantics.
func GetEnvAsBool(key string, fallback bool, log *logger.Logger) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		if log != nil {
			log.Warn("ignoring non-boolean env value", "key", key, "value", v)
		}
		return fallback
	}
	return b
}
