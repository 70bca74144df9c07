// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package drivers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ManuGH/webpdtool/internal/instrument"
	"github.com/ManuGH/webpdtool/internal/log"
)

// SerialDriver is a command driver over a local serial port, used for DUT
// consoles and relay boards. Responses are read until the configured prompt
// or until the read timeout runs out, whichever comes first.
type SerialDriver struct {
	device    string
	baud      int
	prompt    string
	ioTimeout time.Duration

	mu         sync.Mutex
	port       serial.Port
	needsReset bool
}

// NewSerial creates an unconnected serial driver. prompt may be empty, in
// which case Query reads until the timeout.
func NewSerial(device string, baud int, prompt string, ioTimeout time.Duration) *SerialDriver {
	if baud <= 0 {
		baud = 115200
	}
	if ioTimeout <= 0 {
		ioTimeout = defaultIOTimeout
	}
	return &SerialDriver{device: device, baud: baud, prompt: prompt, ioTimeout: ioTimeout}
}

func (d *SerialDriver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: d.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.device, mode)
	if err != nil {
		return fmt.Errorf("serial %s: open: %w", d.device, err)
	}
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		_ = port.Close()
		return fmt.Errorf("serial %s: set read timeout: %w", d.device, err)
	}
	d.port = port
	d.needsReset = false

	log.WithComponent("drivers").Info().
		Str("event", "serial.opened").
		Str("device", d.device).
		Int("baud", d.baud).
		Msg("serial port opened")
	return nil
}

// Reset drains stale bytes from the line.
func (d *SerialDriver) Reset(ctx context.Context) error {
	d.mu.Lock()
	if d.port == nil {
		d.mu.Unlock()
		return d.Initialize(ctx)
	}
	defer d.mu.Unlock()
	if err := d.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("serial %s: reset input: %w", d.device, err)
	}
	if err := d.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("serial %s: reset output: %w", d.device, err)
	}
	d.needsReset = false
	return nil
}

func (d *SerialDriver) NeedsReset() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.needsReset
}

func (d *SerialDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// Write sends a command terminated with CRLF.
func (d *SerialDriver) Write(ctx context.Context, cmd string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked(cmd)
}

func (d *SerialDriver) writeLocked(cmd string) error {
	if d.port == nil {
		return fmt.Errorf("serial %s: not open", d.device)
	}
	if _, err := d.port.Write([]byte(cmd + "\r\n")); err != nil {
		d.needsReset = true
		return fmt.Errorf("serial %s: write: %w", d.device, err)
	}
	return nil
}

// Query writes the command and accumulates the response until the prompt
// shows up, the context is cancelled or the I/O timeout elapses.
func (d *SerialDriver) Query(ctx context.Context, cmd string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeLocked(cmd); err != nil {
		return "", err
	}

	var out strings.Builder
	buf := make([]byte, 512)
	deadline := time.Now().Add(d.ioTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := d.port.Read(buf)
		if err != nil {
			d.needsReset = true
			return "", fmt.Errorf("serial %s: read: %w", d.device, err)
		}
		if n == 0 {
			// Per-read timeout fired without data. With no prompt configured
			// an idle line means the response is complete.
			if d.prompt == "" && out.Len() > 0 {
				return strings.TrimSpace(out.String()), nil
			}
			continue
		}
		out.Write(buf[:n])
		if d.prompt != "" && strings.Contains(out.String(), d.prompt) {
			resp := out.String()
			resp = resp[:strings.Index(resp, d.prompt)]
			return strings.TrimSpace(resp), nil
		}
	}

	if d.prompt != "" {
		d.needsReset = true
		return "", fmt.Errorf("serial %s: prompt %q not seen before timeout", d.device, d.prompt)
	}
	return strings.TrimSpace(out.String()), nil
}

var _ instrument.CommandDriver = (*SerialDriver)(nil)
