// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/instrument"
)

// commandLease is the shared Prepare plumbing of the command-bus handlers:
// lease the switch_mode instrument and demand a command capability.
type commandLease struct {
	leases leaseSet
	driver instrument.CommandDriver
}

func (c *commandLease) prepare(ctx context.Context, env *Env) error {
	lease, err := c.leases.acquire(ctx, env, env.Point.SwitchMode)
	if err != nil {
		return err
	}
	driver, ok := lease.Driver().(instrument.CommandDriver)
	if !ok {
		return fmt.Errorf("instrument %s has no command bus", lease.ID())
	}
	c.driver = driver
	return nil
}

func (c *commandLease) query(ctx context.Context, env *Env, cmd string, fallback time.Duration) (string, error) {
	ioCtx, cancel := context.WithTimeout(ctx, env.IOTimeout(fallback))
	defer cancel()
	reply, err := c.driver.Query(ioCtx, cmd)
	if err != nil {
		c.leases.markError(err)
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (c *commandLease) cleanup() {
	c.leases.releaseAll()
}

// ComPortHandler sends one command on a serial console and returns the
// trimmed reply. Port and baud rate are the leased instrument's registry
// configuration; the plan selects the instrument via switch_mode.
type ComPortHandler struct {
	bus commandLease
	cmd string
}

func (h *ComPortHandler) Prepare(ctx context.Context, env *Env) error {
	cmd, err := env.RequireParam(plan.ParamCommand)
	if err != nil {
		return err
	}
	h.cmd = cmd
	return h.bus.prepare(ctx, env)
}

func (h *ComPortHandler) Execute(ctx context.Context, env *Env) (string, error) {
	return h.bus.query(ctx, env, h.cmd, 5*time.Second)
}

func (h *ComPortHandler) Cleanup(ctx context.Context, env *Env) error {
	h.bus.cleanup()
	return nil
}

// ConsoleHandler runs a command on a remote console (SSH-backed driver).
type ConsoleHandler struct {
	bus commandLease
	cmd string
}

func (h *ConsoleHandler) Prepare(ctx context.Context, env *Env) error {
	cmd, err := env.RequireParam(plan.ParamCommand)
	if err != nil {
		return err
	}
	h.cmd = cmd
	return h.bus.prepare(ctx, env)
}

func (h *ConsoleHandler) Execute(ctx context.Context, env *Env) (string, error) {
	return h.bus.query(ctx, env, h.cmd, 15*time.Second)
}

func (h *ConsoleHandler) Cleanup(ctx context.Context, env *Env) error {
	h.bus.cleanup()
	return nil
}

// L6MPUHandler issues commands to the L6MPU controller. Mode selects a
// command prefix understood by the firmware.
type L6MPUHandler struct {
	bus  commandLease
	cmd  string
	mode string
}

func (h *L6MPUHandler) Prepare(ctx context.Context, env *Env) error {
	cmd, err := env.RequireParam(plan.ParamCommand)
	if err != nil {
		return err
	}
	h.cmd = cmd
	h.mode, _ = env.Param("Mode")
	return h.bus.prepare(ctx, env)
}

func (h *L6MPUHandler) Execute(ctx context.Context, env *Env) (string, error) {
	cmd := h.cmd
	if h.mode != "" {
		cmd = h.mode + " " + cmd
	}
	return h.bus.query(ctx, env, cmd, 15*time.Second)
}

func (h *L6MPUHandler) Cleanup(ctx context.Context, env *Env) error {
	h.bus.cleanup()
	return nil
}

// RelayHandler toggles a relay through the DUT communications driver.
type RelayHandler struct {
	bus     commandLease
	relayID string
	state   string
}

func (h *RelayHandler) Prepare(ctx context.Context, env *Env) error {
	relayID, err := env.RequireParam(plan.ParamRelayID)
	if err != nil {
		return err
	}
	state, err := env.RequireParam(plan.ParamState)
	if err != nil {
		return err
	}
	switch strings.ToUpper(state) {
	case "ON", "OFF":
	default:
		return fmt.Errorf("invalid State %q", state)
	}
	h.relayID = relayID
	h.state = strings.ToUpper(state)
	return h.bus.prepare(ctx, env)
}

func (h *RelayHandler) Execute(ctx context.Context, env *Env) (string, error) {
	ioCtx, cancel := context.WithTimeout(ctx, env.IOTimeout(5*time.Second))
	defer cancel()
	if err := h.bus.driver.Write(ioCtx, fmt.Sprintf("RELAY %s %s", h.relayID, h.state)); err != nil {
		h.bus.leases.markError(err)
		return "", err
	}
	return "OK", nil
}

func (h *RelayHandler) Cleanup(ctx context.Context, env *Env) error {
	h.bus.cleanup()
	return nil
}

// TCPIPHandler opens a TCP connection itself, sends one line and reads one
// line back. No instrument lease is involved.
type TCPIPHandler struct {
	host string
	port string
	cmd  string
}

func (h *TCPIPHandler) Prepare(ctx context.Context, env *Env) error {
	host, err := env.RequireParam(plan.ParamHost)
	if err != nil {
		return err
	}
	port, err := env.RequireParam(plan.ParamPort)
	if err != nil {
		return err
	}
	cmd, err := env.RequireParam(plan.ParamCommand)
	if err != nil {
		return err
	}
	h.host, h.port, h.cmd = host, port, cmd
	return nil
}

func (h *TCPIPHandler) Execute(ctx context.Context, env *Env) (string, error) {
	timeout := env.IOTimeout(5 * time.Second)
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(h.host, h.port))
	if err != nil {
		return "", fmt.Errorf("tcpip %s:%s: %w", h.host, h.port, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte(h.cmd + "\n")); err != nil {
		return "", fmt.Errorf("tcpip %s:%s: write: %w", h.host, h.port, err)
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("tcpip %s:%s: read: %w", h.host, h.port, err)
	}
	return strings.TrimSpace(line), nil
}

func (h *TCPIPHandler) Cleanup(ctx context.Context, env *Env) error {
	return nil
}
