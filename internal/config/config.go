// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the WebPDTool daemon configuration with the
// precedence ENV > config file > built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Listen   string `yaml:"listen"`
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`
	Version  string `yaml:"-"`

	// Persistence
	StoreBackend string `yaml:"storeBackend"` // memory | sqlite | badger
	StorePath    string `yaml:"storePath"`    // DSN / file path for sqlite and badger

	// Instruments
	InstrumentRegistryPath string        `yaml:"instrumentRegistry"`
	AcquireTimeout         time.Duration `yaml:"acquireTimeout"`
	DefaultPointTimeout    time.Duration `yaml:"defaultPointTimeout"`

	// Engine
	RepoRetryMax    int           `yaml:"repoRetryMax"`
	ProgressCadence time.Duration `yaml:"progressCadence"` // polling cadence hint returned to clients

	// Reports
	ReportDir string `yaml:"reportDir"`

	// SFC (MES) service
	SFCBaseURL   string        `yaml:"sfcBaseUrl"`
	SFCTimeout   time.Duration `yaml:"sfcTimeout"`
	SFCRatePerS  float64       `yaml:"sfcRatePerSec"`
	SFCRateBurst int           `yaml:"sfcRateBurst"`

	// Plan cache
	PlanCacheTTL time.Duration `yaml:"planCacheTtl"`
	RedisAddr    string        `yaml:"redisAddr"` // optional; empty = in-memory cache

	// API
	RateLimitRPS   int           `yaml:"rateLimitRps"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// Telemetry
	TelemetryEnabled  bool    `yaml:"telemetryEnabled"`
	TelemetryExporter string  `yaml:"telemetryExporter"` // grpc | http | noop
	TelemetryEndpoint string  `yaml:"telemetryEndpoint"`
	TelemetrySampling float64 `yaml:"telemetrySampling"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Listen:              ":8080",
		DataDir:             "/var/lib/webpdtool",
		LogLevel:            "info",
		StoreBackend:        "sqlite",
		StorePath:           "", // derived from DataDir when empty
		AcquireTimeout:      5 * time.Second,
		DefaultPointTimeout: 30 * time.Second,
		RepoRetryMax:        3,
		ProgressCadence:     500 * time.Millisecond,
		ReportDir:           "", // derived from DataDir when empty
		SFCTimeout:          10 * time.Second,
		SFCRatePerS:         5,
		SFCRateBurst:        10,
		PlanCacheTTL:        5 * time.Minute,
		RateLimitRPS:        50,
		RequestTimeout:      60 * time.Second,
		TelemetryExporter:   "noop",
		TelemetrySampling:   1.0,
	}
}

// Loader resolves configuration from a YAML file and the environment.
type Loader struct {
	path    string
	version string
}

// NewLoader creates a configuration loader. path may be empty (env + defaults only).
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load resolves the configuration with precedence ENV > file > defaults
// and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", l.path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", l.path, err)
		}
	}

	applyEnv(&cfg)
	deriveDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Listen = ParseString("PDT_LISTEN", cfg.Listen)
	cfg.DataDir = ParseString("PDT_DATA", cfg.DataDir)
	cfg.LogLevel = ParseString("PDT_LOG_LEVEL", cfg.LogLevel)

	cfg.StoreBackend = ParseString("PDT_STORE_BACKEND", cfg.StoreBackend)
	cfg.StorePath = ParseString("PDT_STORE_PATH", cfg.StorePath)

	cfg.InstrumentRegistryPath = ParseString("PDT_INSTRUMENT_REGISTRY", cfg.InstrumentRegistryPath)
	cfg.AcquireTimeout = ParseDuration("PDT_ACQUIRE_TIMEOUT", cfg.AcquireTimeout)
	cfg.DefaultPointTimeout = ParseDuration("PDT_DEFAULT_POINT_TIMEOUT", cfg.DefaultPointTimeout)

	cfg.RepoRetryMax = ParseInt("PDT_REPO_RETRY_MAX", cfg.RepoRetryMax)
	cfg.ProgressCadence = ParseDuration("PDT_PROGRESS_CADENCE", cfg.ProgressCadence)

	cfg.ReportDir = ParseString("PDT_REPORT_DIR", cfg.ReportDir)

	cfg.SFCBaseURL = ParseString("PDT_SFC_URL", cfg.SFCBaseURL)
	cfg.SFCTimeout = ParseDuration("PDT_SFC_TIMEOUT", cfg.SFCTimeout)
	cfg.SFCRatePerS = ParseFloat("PDT_SFC_RATE", cfg.SFCRatePerS)
	cfg.SFCRateBurst = ParseInt("PDT_SFC_BURST", cfg.SFCRateBurst)

	cfg.PlanCacheTTL = ParseDuration("PDT_PLAN_CACHE_TTL", cfg.PlanCacheTTL)
	cfg.RedisAddr = ParseString("PDT_REDIS_ADDR", cfg.RedisAddr)

	cfg.RateLimitRPS = ParseInt("PDT_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RequestTimeout = ParseDuration("PDT_REQUEST_TIMEOUT", cfg.RequestTimeout)

	cfg.TelemetryEnabled = ParseBool("PDT_OTEL_ENABLED", cfg.TelemetryEnabled)
	cfg.TelemetryExporter = ParseString("PDT_OTEL_EXPORTER", cfg.TelemetryExporter)
	cfg.TelemetryEndpoint = ParseString("PDT_OTEL_ENDPOINT", cfg.TelemetryEndpoint)
	cfg.TelemetrySampling = ParseFloat("PDT_OTEL_SAMPLING", cfg.TelemetrySampling)
}

func deriveDefaults(cfg *AppConfig) {
	if cfg.StorePath == "" {
		cfg.StorePath = cfg.DataDir + "/webpdtool.db"
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = cfg.DataDir + "/reports"
	}
	if cfg.InstrumentRegistryPath == "" {
		cfg.InstrumentRegistryPath = cfg.DataDir + "/instruments.yaml"
	}
}
