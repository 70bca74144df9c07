// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package drivers

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/webpdtool/internal/chassis"
	"github.com/ManuGH/webpdtool/internal/instrument"
)

// NewFactory returns the registry factory mapping a driver name to its
// transport. ioTimeout bounds individual reads and writes on scpi, serial
// and ssh transports.
func NewFactory(ioTimeout time.Duration) instrument.Factory {
	return func(cfg instrument.InstrumentConfig) (instrument.Driver, error) {
		switch strings.ToLower(cfg.Driver) {
		case "scpi":
			if cfg.Address == "" {
				return nil, fmt.Errorf("drivers: instrument %s: scpi requires address", cfg.ID)
			}
			return NewSCPI(cfg.Address, ioTimeout), nil
		case "serial":
			if cfg.Port == "" {
				return nil, fmt.Errorf("drivers: instrument %s: serial requires port", cfg.ID)
			}
			return NewSerial(cfg.Port, cfg.Baud, cfg.Options["prompt"], ioTimeout), nil
		case "ssh":
			if cfg.Address == "" || cfg.User == "" {
				return nil, fmt.Errorf("drivers: instrument %s: ssh requires address and user", cfg.ID)
			}
			return NewSSH(cfg.Address, cfg.User, cfg.Password, ioTimeout), nil
		case "chassis":
			if cfg.Port == "" {
				return nil, fmt.Errorf("drivers: instrument %s: chassis requires port", cfg.ID)
			}
			return chassis.NewSerialDriver(cfg.Port), nil
		case "fake":
			return NewFake(cfg.Options), nil
		default:
			return nil, fmt.Errorf("drivers: instrument %s: unknown driver %q", cfg.ID, cfg.Driver)
		}
	}
}
