package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Host          string
	Port          int
	APIToken      string
	CACertFile    string
	VerifyTLS     bool
	ClusterName   string
	Namespace     string
	AllNamespaces bool

	Interval                 time.Duration
	ScaleVerificationTimeout time.Duration
	ScaleCooldown            time.Duration

	LogLevel    string
	LogFormat   string
	HTTPPort    string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:        os.Getenv(envKeyHost),
		APIToken:    os.Getenv(envKeyAPIToken),
		CACertFile:  os.Getenv(envKeyCACertFile),
		ClusterName: getEnvOrDefault(envKeyClusterName, "default"),
		Namespace:   getEnvOrDefault(envKeyNamespace, "default"),
		LogLevel:    getEnvOrDefault(envKeyLogLevel, "info"),
		LogFormat:   getEnvOrDefault(envKeyLogFormat, "json"),
		HTTPPort:    getEnvOrDefault(envKeyHTTPPort, "8080"),
		MetricsPort: getEnvOrDefault(envKeyMetricsPort, "9090"),
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("%s is required", envKeyHost)
	}

	if cfg.APIToken == "" {
		return nil, fmt.Errorf("%s is required", envKeyAPIToken)
	}

	port, err := getIntOrDefault(envKeyPort, defaultPort)
	if err != nil {
		return nil, err
	}

	if port < envMinPort || port > envMaxPortSpan {
		return nil, fmt.Errorf("%s out of range: %d", envKeyPort, port)
	}

	cfg.Port = port

	cfg.VerifyTLS, err = getBoolOrDefault(envKeyVerifyTLS, true)
	if err != nil {
		return nil, err
	}

	cfg.AllNamespaces, err = getBoolOrDefault(envKeyAllNamespaces, false)
	if err != nil {
		return nil, err
	}

	cfg.Interval, err = getDurationOrDefault(envKeyInterval, 60*time.Second, envMinInterval)
	if err != nil {
		return nil, err
	}

	cfg.ScaleVerificationTimeout, err = getDurationOrDefault(
		envKeyScaleVerificationTimeout,
		30*time.Second,
		envMinScaleVerificationTimeout,
	)
	if err != nil {
		return nil, err
	}

	cfg.ScaleCooldown, err = getDurationOrDefault(
		envKeyScaleCooldown,
		10*time.Second,
		envMinScaleCooldown,
	)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return parsed, nil
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}

	return parsed, nil
}

func getDurationOrDefault(key string, defaultValue, minimum time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	if parsed < minimum {
		return 0, fmt.Errorf("%s below minimum %s: %s", key, minimum, parsed)
	}

	return parsed, nil
}
