package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	minPollInterval     = 15 * time.Second
	maxPollInterval     = 300 * time.Second
	defaultPollInterval = 60 * time.Second
)

type Config struct {
	Port     string
	Email    string
	Password string

	PollInterval      time.Duration
	StartupRetries    int
	StartupRetryDelay time.Duration

	MQTTBrokerURL   string
	MQTTTopicPrefix string

	JWTPublicKeyPath string
	LogLevel         string

	// Endpoint overrides, normally empty.
	APIBase  string
	AuthBase string
}

func Load() *Config {
	cfg := &Config{
		Port:              getEnv("COCORO_ADAPTER_PORT", "8096"),
		Email:             os.Getenv("COCORO_EMAIL"),
		Password:          os.Getenv("COCORO_PASSWORD"),
		PollInterval:      pollInterval(),
		StartupRetries:    getEnvInt("COCORO_STARTUP_RETRIES", 3),
		StartupRetryDelay: time.Duration(getEnvInt("COCORO_STARTUP_RETRY_DELAY_SECONDS", 10)) * time.Second,
		MQTTBrokerURL:     os.Getenv("MQTT_BROKER_URL"),
		MQTTTopicPrefix:   getEnv("COCORO_MQTT_PREFIX", "cocoro"),
		JWTPublicKeyPath:  os.Getenv("JWT_PUBLIC_KEY_PATH"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		APIBase:           os.Getenv("COCORO_API_BASE"),
		AuthBase:          os.Getenv("COCORO_AUTH_BASE"),
	}
	slog.Info("cocoro-adapter config loaded",
		"port", cfg.Port,
		"poll_interval", cfg.PollInterval,
		"mqtt", cfg.MQTTBrokerURL != "",
		"jwt_guard", cfg.JWTPublicKeyPath != "")
	return cfg
}

// pollInterval reads COCORO_POLL_INTERVAL_SECONDS and clamps it to the
// supported 15-300s range.
func pollInterval() time.Duration {
	iv := defaultPollInterval
	if v := os.Getenv("COCORO_POLL_INTERVAL_SECONDS"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			iv = time.Duration(s) * time.Second
		}
	}
	if iv < minPollInterval {
		iv = minPollInterval
	}
	if iv > maxPollInterval {
		iv = maxPollInterval
	}
	return iv
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
