// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the cloud jobs service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	ShutdownJobWait   time.Duration // Time to let cancelled workflows settle on shutdown

	CloudAPIURL     string        // Provisioning API base URL
	CloudAPITimeout time.Duration // Per-request timeout for the provisioning API

	DatabaseURL      string // PostgreSQL DSN for the local repository; empty uses memory
	VerifyConnection bool   // PING provisioned endpoints before importing them
	VerifyTimeout    time.Duration

	AnalyticsURL        string // Telemetry destination; empty logs only
	AnalyticsSigningKey string

	JobRetention        time.Duration // How long terminal workflows stay queryable
	MaintenanceInterval time.Duration // How often the registry sweep runs

	PollingConfigFile string // Optional YAML file with polling budgets
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:                GetEnv("PORT", "8080"),
		MetricsPort:         GetEnv("METRICS_PORT", "9090"),
		APIKey:              GetSecret("API_KEY", "API_KEY_FILE"),
		ShutdownDrainWait:   GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		ShutdownJobWait:     GetDurationEnv("SHUTDOWN_JOB_WAIT", 10*time.Second),
		CloudAPIURL:         GetEnv("CLOUD_API_URL", "https://api.redislabs.com/v1"),
		CloudAPITimeout:     GetDurationEnv("CLOUD_API_TIMEOUT", 30*time.Second),
		DatabaseURL:         GetSecret("DATABASE_URL", "DATABASE_URL_FILE"),
		VerifyConnection:    GetBoolEnv("VERIFY_CONNECTION", true),
		VerifyTimeout:       GetDurationEnv("VERIFY_TIMEOUT", 10*time.Second),
		AnalyticsURL:        GetEnv("ANALYTICS_URL", ""),
		AnalyticsSigningKey: GetSecret("ANALYTICS_SIGNING_KEY", "ANALYTICS_SIGNING_KEY_FILE"),
		JobRetention:        GetDurationEnv("JOB_RETENTION", 15*time.Minute),
		MaintenanceInterval: GetDurationEnv("MAINTENANCE_INTERVAL", 1*time.Minute),
		PollingConfigFile:   GetEnv("POLLING_CONFIG_FILE", ""),
	}
}
