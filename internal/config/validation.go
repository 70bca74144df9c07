// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig wraps all validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks the resolved configuration for values the daemon
// cannot safely run with.
func (c AppConfig) Validate() error {
	var problems []string

	switch c.StoreBackend {
	case "memory", "sqlite", "badger":
	default:
		problems = append(problems, fmt.Sprintf("storeBackend: unknown backend %q", c.StoreBackend))
	}

	if c.Listen == "" {
		problems = append(problems, "listen: must not be empty")
	}
	if c.AcquireTimeout <= 0 {
		problems = append(problems, "acquireTimeout: must be > 0")
	}
	if c.DefaultPointTimeout <= 0 {
		problems = append(problems, "defaultPointTimeout: must be > 0")
	}
	if c.RepoRetryMax < 1 {
		problems = append(problems, "repoRetryMax: must be >= 1")
	}
	if c.TelemetryEnabled {
		switch c.TelemetryExporter {
		case "grpc", "http", "noop":
		default:
			problems = append(problems, fmt.Sprintf("telemetryExporter: unknown exporter %q", c.TelemetryExporter))
		}
		if c.TelemetrySampling < 0 || c.TelemetrySampling > 1 {
			problems = append(problems, "telemetrySampling: must be within [0,1]")
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, problems)
}
