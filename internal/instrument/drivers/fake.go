// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package drivers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ManuGH/webpdtool/internal/instrument"
)

// FakeDriver is a scriptable in-memory instrument for development without
// bench hardware (driver: fake in the registry). Canned responses come from
// the registry row's options map, keyed by the command or query; everything
// else gets a deterministic default.
type FakeDriver struct {
	responses map[string]string

	mu       sync.Mutex
	online   bool
	angle    float64
	Commands []string // every command seen, for tests
}

// NewFake builds a fake driver with the given canned responses (may be nil).
func NewFake(responses map[string]string) *FakeDriver {
	if responses == nil {
		responses = map[string]string{}
	}
	return &FakeDriver{responses: responses}
}

func (d *FakeDriver) Initialize(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online = true
	return nil
}

func (d *FakeDriver) Reset(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online = true
	d.angle = 0
	return nil
}

func (d *FakeDriver) NeedsReset() bool { return false }

func (d *FakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online = false
	return nil
}

func (d *FakeDriver) record(cmd string) {
	d.Commands = append(d.Commands, cmd)
}

func (d *FakeDriver) respond(key, fallback string) string {
	if v, ok := d.responses[key]; ok {
		return v
	}
	return fallback
}

func (d *FakeDriver) SetOutput(ctx context.Context, channel string, volt, curr float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(fmt.Sprintf("power:set %s %g %g", channel, volt, curr))
	if v, ok := d.responses["power:set"]; ok && strings.HasPrefix(v, "error") {
		return fmt.Errorf("fake power: %s", v)
	}
	return nil
}

func (d *FakeDriver) Read(ctx context.Context, item, channel, typ string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := "read:" + strings.ToLower(item)
	d.record(key)
	return d.respond(key, "12.01"), nil
}

func (d *FakeDriver) Write(ctx context.Context, cmd string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(cmd)
	return nil
}

func (d *FakeDriver) Query(ctx context.Context, cmd string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(cmd)
	return d.respond(cmd, "OK"), nil
}

func (d *FakeDriver) Rotate(ctx context.Context, direction string, angle float64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(fmt.Sprintf("rotate %s %g", direction, angle))
	if strings.EqualFold(direction, "ccw") {
		d.angle -= angle
	} else {
		d.angle += angle
	}
	return "SUCCESS", nil
}

func (d *FakeDriver) Home(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("home")
	d.angle = 0
	return "SUCCESS", nil
}

func (d *FakeDriver) Angle(ctx context.Context) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("angle")
	if v, ok := d.responses["angle"]; ok {
		return strconv.ParseFloat(v, 64)
	}
	return d.angle, nil
}

var (
	_ instrument.PowerDriver    = (*FakeDriver)(nil)
	_ instrument.MeterDriver    = (*FakeDriver)(nil)
	_ instrument.CommandDriver  = (*FakeDriver)(nil)
	_ instrument.RotationDriver = (*FakeDriver)(nil)
)
