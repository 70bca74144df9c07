// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package drivers contains the concrete instrument transports behind the
// instrument manager: SCPI over raw TCP, serial consoles, SSH shells and a
// scriptable fake for bench-less development.
package drivers

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/webpdtool/internal/instrument"
	"github.com/ManuGH/webpdtool/internal/log"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 10 * time.Second
)

// measurement item to SCPI function.
var scpiFunctions = map[string]string{
	"volt": "VOLT",
	"curr": "CURR",
	"res":  "RES",
	"temp": "TEMP",
	"freq": "FREQ",
	"pow":  "POW",
}

// SCPIDriver speaks newline-terminated SCPI over a raw TCP socket (port 5025
// style). It implements the power, meter and command capabilities; which of
// them make sense depends on the instrument behind the socket.
type SCPIDriver struct {
	address     string
	dialTimeout time.Duration
	ioTimeout   time.Duration

	mu         sync.Mutex
	conn       net.Conn
	reader     *bufio.Reader
	identity   string
	needsReset bool
}

// NewSCPI creates an unconnected SCPI driver for the given host:port.
func NewSCPI(address string, ioTimeout time.Duration) *SCPIDriver {
	if ioTimeout <= 0 {
		ioTimeout = defaultIOTimeout
	}
	return &SCPIDriver{
		address:     address,
		dialTimeout: defaultDialTimeout,
		ioTimeout:   ioTimeout,
	}
}

// Initialize dials the instrument and probes it with *IDN?.
func (d *SCPIDriver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: d.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return fmt.Errorf("scpi %s: dial: %w", d.address, err)
	}
	d.conn = conn
	d.reader = bufio.NewReader(conn)

	idn, err := d.queryLocked(ctx, "*IDN?")
	if err != nil {
		_ = conn.Close()
		d.conn = nil
		d.reader = nil
		return fmt.Errorf("scpi %s: probe: %w", d.address, err)
	}
	d.identity = idn
	d.needsReset = false

	log.WithComponent("drivers").Info().
		Str("event", "scpi.connected").
		Str("address", d.address).
		Str("identity", idn).
		Msg("scpi instrument connected")
	return nil
}

// Reset issues *RST;*CLS, reconnecting first if the socket is gone.
func (d *SCPIDriver) Reset(ctx context.Context) error {
	d.mu.Lock()
	if d.conn == nil {
		d.mu.Unlock()
		return d.Initialize(ctx)
	}
	defer d.mu.Unlock()

	if err := d.writeLocked(ctx, "*RST;*CLS"); err != nil {
		return err
	}
	// *OPC? blocks until the reset settles.
	if _, err := d.queryLocked(ctx, "*OPC?"); err != nil {
		return err
	}
	d.needsReset = false
	return nil
}

func (d *SCPIDriver) NeedsReset() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.needsReset
}

func (d *SCPIDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.reader = nil
	return err
}

// Identity returns the cached *IDN? response.
func (d *SCPIDriver) Identity() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identity
}

// SetOutput programs one power-supply channel and enables it.
func (d *SCPIDriver) SetOutput(ctx context.Context, channel string, volt, curr float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmds := []string{
		fmt.Sprintf("INST:NSEL %s", channel),
		fmt.Sprintf("VOLT %g", volt),
		fmt.Sprintf("CURR %g", curr),
		"OUTP ON",
	}
	if channel == "" {
		cmds = cmds[1:]
	}
	for _, cmd := range cmds {
		if err := d.writeLocked(ctx, cmd); err != nil {
			return err
		}
	}
	_, err := d.queryLocked(ctx, "*OPC?")
	return err
}

// Read issues a MEASure query for the given item, channel and coupling.
func (d *SCPIDriver) Read(ctx context.Context, item, channel, typ string) (string, error) {
	fn, ok := scpiFunctions[strings.ToLower(item)]
	if !ok {
		return "", fmt.Errorf("scpi: unknown measurement item %q", item)
	}

	query := "MEAS:" + fn
	if typ != "" {
		query += ":" + strings.ToUpper(typ)
	}
	query += "?"
	if channel != "" {
		query += fmt.Sprintf(" (@%s)", channel)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryLocked(ctx, query)
}

// Write sends a raw command without expecting a response.
func (d *SCPIDriver) Write(ctx context.Context, cmd string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked(ctx, cmd)
}

// Query sends a raw command and reads one response line.
func (d *SCPIDriver) Query(ctx context.Context, cmd string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryLocked(ctx, cmd)
}

func (d *SCPIDriver) writeLocked(ctx context.Context, cmd string) error {
	if d.conn == nil {
		return fmt.Errorf("scpi %s: not connected", d.address)
	}
	deadline := time.Now().Add(d.ioTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := d.conn.Write([]byte(cmd + "\n")); err != nil {
		d.needsReset = true
		return fmt.Errorf("scpi %s: write %q: %w", d.address, cmd, err)
	}
	return nil
}

func (d *SCPIDriver) queryLocked(ctx context.Context, cmd string) (string, error) {
	if err := d.writeLocked(ctx, cmd); err != nil {
		return "", err
	}
	deadline := time.Now().Add(d.ioTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := d.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	line, err := d.reader.ReadString('\n')
	if err != nil {
		d.needsReset = true
		return "", fmt.Errorf("scpi %s: read after %q: %w", d.address, cmd, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var (
	_ instrument.PowerDriver   = (*SCPIDriver)(nil)
	_ instrument.MeterDriver   = (*SCPIDriver)(nil)
	_ instrument.CommandDriver = (*SCPIDriver)(nil)
)
