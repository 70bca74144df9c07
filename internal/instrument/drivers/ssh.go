// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package drivers

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ManuGH/webpdtool/internal/instrument"
	"github.com/ManuGH/webpdtool/internal/log"
)

// SSHDriver runs commands on a networked DUT or fixture controller over SSH.
// Every Query opens a fresh session on the shared connection, so commands
// cannot leak shell state into each other.
type SSHDriver struct {
	address   string
	user      string
	password  string
	ioTimeout time.Duration

	mu         sync.Mutex
	client     *ssh.Client
	needsReset bool
}

// NewSSH creates an unconnected SSH driver for user@address.
func NewSSH(address, user, password string, ioTimeout time.Duration) *SSHDriver {
	if ioTimeout <= 0 {
		ioTimeout = defaultIOTimeout
	}
	return &SSHDriver{address: address, user: user, password: password, ioTimeout: ioTimeout}
}

func (d *SSHDriver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return nil
	}
	cfg := &ssh.ClientConfig{
		User: d.user,
		Auth: []ssh.AuthMethod{ssh.Password(d.password)},
		// Test-floor DUTs regenerate host keys on every flash.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         defaultDialTimeout,
	}
	client, err := ssh.Dial("tcp", d.address, cfg)
	if err != nil {
		return fmt.Errorf("ssh %s: dial: %w", d.address, err)
	}
	d.client = client
	d.needsReset = false

	log.WithComponent("drivers").Info().
		Str("event", "ssh.connected").
		Str("address", d.address).
		Str("user", d.user).
		Msg("ssh target connected")
	return nil
}

// Reset tears the connection down and dials again.
func (d *SSHDriver) Reset(ctx context.Context) error {
	d.mu.Lock()
	if d.client != nil {
		_ = d.client.Close()
		d.client = nil
	}
	d.mu.Unlock()
	return d.Initialize(ctx)
}

func (d *SSHDriver) NeedsReset() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.needsReset
}

func (d *SSHDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// Write runs the command and discards its output.
func (d *SSHDriver) Write(ctx context.Context, cmd string) error {
	_, err := d.Query(ctx, cmd)
	return err
}

// Query runs the command in a fresh session and returns combined output.
func (d *SSHDriver) Query(ctx context.Context, cmd string) (string, error) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return "", fmt.Errorf("ssh %s: not connected", d.address)
	}

	session, err := client.NewSession()
	if err != nil {
		d.mu.Lock()
		d.needsReset = true
		d.mu.Unlock()
		return "", fmt.Errorf("ssh %s: session: %w", d.address, err)
	}
	defer func() { _ = session.Close() }()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	timer := time.NewTimer(d.ioTimeout)
	defer timer.Stop()
	select {
	case err = <-done:
	case <-timer.C:
		_ = session.Close()
		d.mu.Lock()
		d.needsReset = true
		d.mu.Unlock()
		return "", fmt.Errorf("ssh %s: command %q timed out", d.address, cmd)
	case <-ctx.Done():
		_ = session.Close()
		return "", ctx.Err()
	}
	if err != nil {
		return "", fmt.Errorf("ssh %s: run %q: %w", d.address, cmd, err)
	}
	return out.String(), nil
}

var _ instrument.CommandDriver = (*SSHDriver)(nil)
