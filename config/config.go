// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the energy collector.
//
// Configuration is read once at startup. An optional YAML file named by
// COLLECTOR_CONFIG_FILE is checked against an embedded JSON schema and
// loaded first, then environment variables are applied on top, then
// defaults fill the gaps and the result is validated.
// Any missing required value is reported as a ConfigError naming the
// environment variable that would supply it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/soothill/delock-energy-collector/pkg/errors"
	"github.com/soothill/delock-energy-collector/pkg/logger"
	"github.com/soothill/delock-energy-collector/pkg/util"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfigFile      = "COLLECTOR_CONFIG_FILE"
	EnvInfluxURL       = "INFLUX_URL"
	EnvInfluxToken     = "INFLUX_TOKEN"
	EnvInfluxOrg       = "INFLUX_ORG"
	EnvInfluxBucket    = "INFLUX_BUCKET_NAME"
	EnvBreakerFailures = "INFLUX_BREAKER_FAILURES"
	EnvBreakerTimeout  = "INFLUX_BREAKER_TIMEOUT"
	EnvDeviceURL       = "DEVICE_URL"
	EnvDeviceID        = "DEVICE_ID"
	EnvDeviceMDNS      = "DEVICE_MDNS_INSTANCE"
	EnvConnectTimeout  = "DEVICE_CONNECT_TIMEOUT"
	EnvReadTimeout     = "DEVICE_READ_TIMEOUT"
	EnvPollInterval    = "POLL_INTERVAL"
	EnvRetryInterval   = "RETRY_INTERVAL"
	EnvMetricsAddr     = "METRICS_ADDR"
	EnvLogLevel        = "LOG_LEVEL"
)

// Defaults
const (
	DefaultDeviceURL       = "http://192.168.178.39/cm?cmnd=Status%2008"
	DefaultDeviceID        = "delock-0580"
	DefaultConnectTimeout  = 2 * time.Second
	DefaultReadTimeout     = 5 * time.Second
	DefaultPollInterval    = 60 * time.Second
	DefaultRetryInterval   = 10 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
	DefaultMetricsAddr     = "localhost:9090"
)

// Config represents the application configuration
type Config struct {
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Device    DeviceConfig    `yaml:"device"`
	Collector CollectorConfig `yaml:"collector"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InfluxDBConfig holds InfluxDB connection settings
type InfluxDBConfig struct {
	URL             string        `yaml:"url" validate:"required,url"`
	Token           string        `yaml:"token" validate:"required"`
	Organization    string        `yaml:"organization" validate:"required"`
	Bucket          string        `yaml:"bucket" validate:"required"`
	BreakerFailures uint32        `yaml:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" validate:"min=1s"`
}

// DeviceConfig holds the smart plug endpoint settings
type DeviceConfig struct {
	URL            string        `yaml:"url" validate:"required,url"`
	ID             string        `yaml:"id" validate:"required"`
	MDNSInstance   string        `yaml:"mdns_instance"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"min=100ms,max=1m"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"min=100ms,max=1m"`
}

// CollectorConfig holds the poll loop cadence
type CollectorConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval" validate:"min=1s,max=1h"`
	RetryInterval time.Duration `yaml:"retry_interval" validate:"min=1s,max=1h"`
}

// MetricsConfig holds the metrics and health endpoint settings
type MetricsConfig struct {
	// Address is host:port for /metrics, /health and /ready. Empty disables the server.
	Address string `yaml:"address"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// envNames maps validator namespaces to the variable that sets the field.
var envNames = map[string]string{
	"Config.InfluxDB.URL":              EnvInfluxURL,
	"Config.InfluxDB.Token":            EnvInfluxToken,
	"Config.InfluxDB.Organization":     EnvInfluxOrg,
	"Config.InfluxDB.Bucket":           EnvInfluxBucket,
	"Config.InfluxDB.BreakerFailures":  EnvBreakerFailures,
	"Config.InfluxDB.BreakerTimeout":   EnvBreakerTimeout,
	"Config.Device.URL":                EnvDeviceURL,
	"Config.Device.ID":                 EnvDeviceID,
	"Config.Device.ConnectTimeout":     EnvConnectTimeout,
	"Config.Device.ReadTimeout":        EnvReadTimeout,
	"Config.Collector.PollInterval":    EnvPollInterval,
	"Config.Collector.RetryInterval":   EnvRetryInterval,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the optional config file, applies environment variable overrides
// and defaults, and validates the result.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv(EnvConfigFile); path != "" {
		data, err := util.ReadFileSafely(path)
		if err != nil {
			return nil, apperrors.NewConfigError(EnvConfigFile, path, fmt.Errorf("failed to read config file: %w", err))
		}
		if err := ValidateDocument(data); err != nil {
			return nil, apperrors.NewConfigError(EnvConfigFile, path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, apperrors.NewConfigError(EnvConfigFile, path, fmt.Errorf("failed to parse config file: %w", err))
		}
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() error {
	overrideString(EnvInfluxURL, &c.InfluxDB.URL)
	overrideString(EnvInfluxToken, &c.InfluxDB.Token)
	overrideString(EnvInfluxOrg, &c.InfluxDB.Organization)
	overrideString(EnvInfluxBucket, &c.InfluxDB.Bucket)
	overrideString(EnvDeviceURL, &c.Device.URL)
	overrideString(EnvDeviceID, &c.Device.ID)
	overrideString(EnvDeviceMDNS, &c.Device.MDNSInstance)
	overrideString(EnvLogLevel, &c.Logging.Level)

	if addr, ok := os.LookupEnv(EnvMetricsAddr); ok {
		c.Metrics.Address = addr
	} else if c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddr
	}

	durations := []struct {
		env    string
		target *time.Duration
	}{
		{EnvBreakerTimeout, &c.InfluxDB.BreakerTimeout},
		{EnvConnectTimeout, &c.Device.ConnectTimeout},
		{EnvReadTimeout, &c.Device.ReadTimeout},
		{EnvPollInterval, &c.Collector.PollInterval},
		{EnvRetryInterval, &c.Collector.RetryInterval},
	}
	for _, d := range durations {
		if err := overrideDuration(d.env, d.target); err != nil {
			return err
		}
	}

	if raw := os.Getenv(EnvBreakerFailures); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return apperrors.NewConfigError(EnvBreakerFailures, raw, fmt.Errorf("%w: %w", apperrors.ErrInvalidValue, err))
		}
		c.InfluxDB.BreakerFailures = uint32(n)
	}

	return nil
}

func overrideString(env string, target *string) {
	if v := os.Getenv(env); v != "" {
		*target = v
	}
}

// overrideDuration accepts Go duration strings ("90s") or a bare number of seconds.
func overrideDuration(env string, target *time.Duration) error {
	raw := os.Getenv(env)
	if raw == "" {
		return nil
	}
	d, err := ParseDuration(raw)
	if err != nil {
		return apperrors.NewConfigError(env, raw, fmt.Errorf("%w: %w", apperrors.ErrInvalidValue, err))
	}
	*target = d
	return nil
}

// ParseDuration parses a Go duration string, or an integer number of seconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.InfluxDB.BreakerFailures == 0 {
		c.InfluxDB.BreakerFailures = DefaultBreakerFailures
	}
	if c.InfluxDB.BreakerTimeout == 0 {
		c.InfluxDB.BreakerTimeout = DefaultBreakerTimeout
	}
	if c.Device.URL == "" {
		c.Device.URL = DefaultDeviceURL
	}
	if c.Device.ID == "" {
		c.Device.ID = DefaultDeviceID
	}
	if c.Device.ConnectTimeout == 0 {
		c.Device.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Device.ReadTimeout == 0 {
		c.Device.ReadTimeout = DefaultReadTimeout
	}
	if c.Collector.PollInterval == 0 {
		c.Collector.PollInterval = DefaultPollInterval
	}
	if c.Collector.RetryInterval == 0 {
		c.Collector.RetryInterval = DefaultRetryInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = logger.DefaultLevel
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return translateValidationError(err)
	}

	if err := c.validateInfluxDB(); err != nil {
		return err
	}

	if err := c.validateCollector(); err != nil {
		return err
	}

	if !logger.ValidLevel(c.Logging.Level) {
		return apperrors.NewConfigError(EnvLogLevel, c.Logging.Level,
			fmt.Errorf("%w: must be one of debug, info, warn, error, fatal", apperrors.ErrInvalidValue))
	}

	return nil
}

// translateValidationError turns the first validator failure into a ConfigError.
func translateValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.NewConfigError("config", "", err)
	}

	fe := verrs[0]
	field, ok := envNames[fe.StructNamespace()]
	if !ok {
		field = fe.StructNamespace()
	}

	if fe.Tag() == "required" {
		return apperrors.NewConfigError(field, "", apperrors.ErrMissingValue)
	}

	value := fmt.Sprintf("%v", fe.Value())
	if field == EnvInfluxToken {
		value = "<redacted>"
	}
	return apperrors.NewConfigError(field, value,
		fmt.Errorf("%w: failed %q constraint %s", apperrors.ErrInvalidValue, fe.Tag(), fe.Param()))
}

// validateInfluxDB checks the InfluxDB URL is safe to send a token to
func (c *Config) validateInfluxDB() error {
	parsedURL, parseErr := url.Parse(c.InfluxDB.URL)
	if parseErr != nil {
		return apperrors.NewConfigError(EnvInfluxURL, c.InfluxDB.URL, parseErr)
	}

	return validateURLSecurity(parsedURL)
}

// validateURLSecurity checks if the URL uses HTTPS for non-local connections
func validateURLSecurity(parsedURL *url.URL) error {
	if parsedURL.Scheme != "http" {
		return nil
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	isLocal := hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		!strings.Contains(hostname, ".") ||
		strings.HasSuffix(hostname, ".local") ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.") ||
		strings.HasPrefix(hostname, "172.")

	if !isLocal {
		return apperrors.NewConfigError(EnvInfluxURL, parsedURL.String(),
			fmt.Errorf("must use HTTPS for non-local connections (got %s)", parsedURL.Scheme))
	}

	return nil
}

// validateCollector checks the retry interval never exceeds the baseline
func (c *Config) validateCollector() error {
	if c.Collector.RetryInterval > c.Collector.PollInterval {
		return apperrors.NewConfigError(EnvRetryInterval, c.Collector.RetryInterval.String(),
			fmt.Errorf("%w: must not exceed %s (%s)", apperrors.ErrInvalidValue, EnvPollInterval, c.Collector.PollInterval))
	}
	return nil
}
