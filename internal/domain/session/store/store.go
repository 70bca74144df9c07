// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store provides the persistence backends behind the engine's
// repository ports: an in-memory store for tests and development, SQLite
// for single-station deployments and Badger for embedded key-value setups.
package store

import (
	"context"
	"fmt"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
	"github.com/ManuGH/webpdtool/internal/log"
)

// Store is the combined persistence surface: session/result rows, SFC audit
// rows and the test plans themselves.
type Store interface {
	ports.ResultRepository
	ports.PlanRepository

	// SavePlan replaces the stored plan for a station.
	SavePlan(ctx context.Context, stationID string, points []plan.Point) error
	// Stations lists station ids with a stored plan.
	Stations(ctx context.Context) ([]string, error)

	Close() error
}

// Config selects and parameterises a backend.
type Config struct {
	Backend string // memory | sqlite | badger
	Path    string // file path (sqlite) or directory (badger)
}

// Open constructs the configured backend.
func Open(cfg Config) (Store, error) {
	logger := log.WithComponent("store")
	switch cfg.Backend {
	case "memory", "":
		logger.Info().Str("backend", "memory").Msg("store opened")
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite: %w", err)
		}
		logger.Info().Str("backend", "sqlite").Str(log.FieldPath, cfg.Path).Msg("store opened")
		return s, nil
	case "badger":
		s, err := OpenBadger(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("store: open badger: %w", err)
		}
		logger.Info().Str("backend", "badger").Str(log.FieldPath, cfg.Path).Msg("store opened")
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
