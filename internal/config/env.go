package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// parseEnv reads key through parse. Unset keys and values parse rejects
// yield fallback; a rejected value is logged so a typo in an override is visible.
func parseEnv[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		slog.Warn("Ignoring invalid environment override", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

// GetEnv returns the value of key, or fallback when it is unset or empty.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetIntEnv returns key parsed as an int.
func GetIntEnv(key string, fallback int) int {
	return parseEnv(key, fallback, strconv.Atoi)
}

// GetBoolEnv returns key parsed by strconv.ParseBool.
func GetBoolEnv(key string, fallback bool) bool {
	return parseEnv(key, fallback, strconv.ParseBool)
}

// GetDurationEnv returns key parsed as a Go duration ("750ms", "2m").
func GetDurationEnv(key string, fallback time.Duration) time.Duration {
	return parseEnv(key, fallback, time.ParseDuration)
}

// GetSecretFile returns the trimmed content of the file at path, or "" when
// path is empty or unreadable. Mounted secrets end with a newline.
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read secret file", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}

// GetSecret prefers the file named by fileKey over the plain value of key.
func GetSecret(key, fileKey string) string {
	if v := GetSecretFile(os.Getenv(fileKey)); v != "" {
		return v
	}
	return os.Getenv(key)
}
