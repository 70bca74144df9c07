// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package instrument brokers access to laboratory instruments: one lazy
// singleton connection per instrument id, exclusive leases for callers, and
// reset/teardown plumbing. Long measurement I/O runs while the caller holds
// a lease, outside the manager lock.
package instrument

import "context"

// Driver is a stateful connection to one physical instrument. Reconnection
// after an I/O error is the driver's responsibility, signalled to the
// manager via NeedsReset.
type Driver interface {
	// Initialize opens the connection and probes the instrument.
	Initialize(ctx context.Context) error
	// Reset returns the instrument to a known state.
	Reset(ctx context.Context) error
	// NeedsReset reports whether the last I/O left the connection suspect.
	NeedsReset() bool
	Close() error
}

// PowerDriver programs a power supply output.
type PowerDriver interface {
	Driver
	SetOutput(ctx context.Context, channel string, volt, curr float64) error
}

// MeterDriver reads a measurement from a DMM/DAQ/RF instrument.
// item is the quantity (volt/curr/res/temp/freq), typ the coupling (AC/DC/...).
type MeterDriver interface {
	Driver
	Read(ctx context.Context, item, channel, typ string) (string, error)
}

// CommandDriver exposes raw write/query against a command bus (SCPI, serial
// console, DUT communications).
type CommandDriver interface {
	Driver
	Write(ctx context.Context, cmd string) error
	Query(ctx context.Context, cmd string) (string, error)
}

// RotationDriver drives the chassis fixture.
type RotationDriver interface {
	Driver
	Rotate(ctx context.Context, direction string, angle float64) (string, error)
	Home(ctx context.Context) (string, error)
	Angle(ctx context.Context) (float64, error)
}

// DriverRegistry constructs a driver for an instrument id. Implementations
// decide the transport (SCPI/TCP, serial, SSH) from their configuration.
type DriverRegistry interface {
	New(instrumentID string) (Driver, error)
	// IDs lists the configured instrument ids.
	IDs() []string
}
