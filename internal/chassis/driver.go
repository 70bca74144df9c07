// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chassis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ManuGH/webpdtool/internal/instrument"
)

// fixture line parameters, fixed by the firmware
const (
	fixtureBaud        = 9600
	fixtureReadTimeout = 500 * time.Millisecond
)

// SerialDriver adapts the fixture client to the instrument manager's
// rotation capability over a local serial port.
type SerialDriver struct {
	device string

	mu         sync.Mutex
	port       serial.Port
	client     *Client
	needsReset bool
}

// NewSerialDriver creates an unconnected fixture driver for a device path.
func NewSerialDriver(device string) *SerialDriver {
	return &SerialDriver{device: device}
}

func (d *SerialDriver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: fixtureBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.device, mode)
	if err != nil {
		return fmt.Errorf("chassis %s: open: %w", d.device, err)
	}
	if err := port.SetReadTimeout(fixtureReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("chassis %s: set read timeout: %w", d.device, err)
	}
	d.port = port
	d.client = NewClient(port)
	d.needsReset = false
	return nil
}

// Reset drains the line and homes the turntable.
func (d *SerialDriver) Reset(ctx context.Context) error {
	d.mu.Lock()
	if d.port == nil {
		d.mu.Unlock()
		return d.Initialize(ctx)
	}
	port, client := d.port, d.client
	d.mu.Unlock()

	if err := port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("chassis %s: reset input: %w", d.device, err)
	}
	status, err := client.Home(ctx)
	if err != nil {
		return err
	}
	if status != StatusSuccess.String() {
		return fmt.Errorf("chassis %s: home: %s", d.device, status)
	}
	d.mu.Lock()
	d.needsReset = false
	d.mu.Unlock()
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
	d.client = nil
	return err
}

func (d *SerialDriver) clientOrErr() (*Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil, fmt.Errorf("chassis %s: not open", d.device)
	}
	return d.client, nil
}

func (d *SerialDriver) markSuspect(err error) error {
	if err != nil {
		d.mu.Lock()
		d.needsReset = true
		d.mu.Unlock()
	}
	return err
}

func (d *SerialDriver) Rotate(ctx context.Context, direction string, angle float64) (string, error) {
	client, err := d.clientOrErr()
	if err != nil {
		return "", err
	}
	status, err := client.Rotate(ctx, direction, angle)
	return status, d.markSuspect(err)
}

func (d *SerialDriver) Home(ctx context.Context) (string, error) {
	client, err := d.clientOrErr()
	if err != nil {
		return "", err
	}
	status, err := client.Home(ctx)
	return status, d.markSuspect(err)
}

func (d *SerialDriver) Angle(ctx context.Context) (float64, error) {
	client, err := d.clientOrErr()
	if err != nil {
		return 0, err
	}
	angle, err := client.Angle(ctx)
	return angle, d.markSuspect(err)
}

var _ instrument.RotationDriver = (*SerialDriver)(nil)
