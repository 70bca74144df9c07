// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package instrument

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/webpdtool/internal/log"
	"github.com/ManuGH/webpdtool/internal/metrics"
)

// State is the runtime connection state of one instrument.
type State string

const (
	StateOffline State = "OFFLINE"
	StateIdle    State = "IDLE"
	StateBusy    State = "BUSY"
	StateError   State = "ERROR"
)

var (
	// ErrNotConfigured is returned for instrument ids absent from the registry.
	ErrNotConfigured = errors.New("instrument not configured")
	// ErrAcquireTimeout is returned when the busy holder does not release in time.
	ErrAcquireTimeout = errors.New("instrument acquire timeout")
)

// StatusEntry is the snapshot row returned by Manager.Status.
type StatusEntry struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Holder     string    `json:"holder,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	LastUsedAt time.Time `json:"last_used_at,omitzero"`
}

type entry struct {
	id         string
	sem        chan struct{} // capacity 1; holding the token = holding the lease
	mu         sync.Mutex    // guards the fields below
	state      State
	driver     Driver
	holder     string
	lastError  string
	lastUsedAt time.Time
}

func (e *entry) setState(s State) {
	e.state = s
	metrics.InstrumentState(e.id, string(s))
}

// Manager is the process-wide instrument broker.
type Manager struct {
	registry       DriverRegistry
	acquireTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager creates a manager over the given registry. acquireTimeout
// bounds how long Acquire waits for a busy instrument (default 5s).
func NewManager(registry DriverRegistry, acquireTimeout time.Duration) *Manager {
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	return &Manager{
		registry:       registry,
		acquireTimeout: acquireTimeout,
		entries:        make(map[string]*entry),
	}
}

// Lease is exclusive access to one instrument. Release is idempotent.
type Lease struct {
	ent  *entry
	once sync.Once
}

// ID returns the leased instrument id.
func (l *Lease) ID() string { return l.ent.id }

// Driver returns the leased driver. Only valid until Release.
func (l *Lease) Driver() Driver {
	l.ent.mu.Lock()
	defer l.ent.mu.Unlock()
	return l.ent.driver
}

// MarkError flags the instrument after a failed driver call. The entry moves
// to ERROR and the next Acquire resets the driver before handing out a lease.
func (l *Lease) MarkError(err error) {
	l.ent.mu.Lock()
	defer l.ent.mu.Unlock()
	l.ent.lastError = err.Error()
	l.ent.setState(StateError)
}

// Release returns the instrument to the pool.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.ent.mu.Lock()
		if l.ent.state == StateBusy {
			l.ent.setState(StateIdle)
		}
		l.ent.holder = ""
		l.ent.lastUsedAt = time.Now()
		l.ent.mu.Unlock()
		<-l.ent.sem
	})
}

func (m *Manager) entryFor(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		return e, nil
	}
	known := false
	for _, configured := range m.registry.IDs() {
		if configured == id {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, id)
	}
	e := &entry{id: id, sem: make(chan struct{}, 1)}
	e.setState(StateOffline)
	m.entries[id] = e
	return e, nil
}

// Acquire leases the instrument for owner, constructing and initialising the
// driver on first use. It blocks until the instrument is free or the acquire
// timeout elapses.
func (m *Manager) Acquire(ctx context.Context, id, owner string) (*Lease, error) {
	start := time.Now()
	ent, err := m.entryFor(id)
	if err != nil {
		metrics.AcquireFailure("not_configured")
		return nil, err
	}

	timer := time.NewTimer(m.acquireTimeout)
	defer timer.Stop()
	select {
	case ent.sem <- struct{}{}:
	case <-timer.C:
		metrics.AcquireFailure("timeout")
		return nil, fmt.Errorf("%w: %s held by %s", ErrAcquireTimeout, id, ent.holderSnapshot())
	case <-ctx.Done():
		metrics.AcquireFailure("timeout")
		return nil, ctx.Err()
	}
	metrics.AcquireWait(time.Since(start).Seconds())

	// We hold the semaphore: nobody else can touch the driver.
	ent.mu.Lock()
	defer func() {
		ent.mu.Unlock()
	}()

	if ent.driver == nil {
		drv, err := m.registry.New(id)
		if err != nil {
			ent.lastError = err.Error()
			ent.setState(StateError)
			<-ent.sem
			metrics.AcquireFailure("init_failed")
			return nil, fmt.Errorf("instrument %s: construct driver: %w", id, err)
		}
		ent.driver = drv
	}

	switch ent.state {
	case StateOffline:
		if err := ent.driver.Initialize(ctx); err != nil {
			ent.lastError = err.Error()
			ent.setState(StateError)
			<-ent.sem
			metrics.AcquireFailure("init_failed")
			return nil, fmt.Errorf("instrument %s: initialize: %w", id, err)
		}
	case StateError:
		if err := ent.driver.Reset(ctx); err != nil {
			ent.lastError = err.Error()
			<-ent.sem
			metrics.AcquireFailure("init_failed")
			return nil, fmt.Errorf("instrument %s: reset after error: %w", id, err)
		}
		metrics.InstrumentReset()
	case StateIdle:
		if ent.driver.NeedsReset() {
			if err := ent.driver.Reset(ctx); err != nil {
				ent.lastError = err.Error()
				ent.setState(StateError)
				<-ent.sem
				metrics.AcquireFailure("init_failed")
				return nil, fmt.Errorf("instrument %s: reset: %w", id, err)
			}
			metrics.InstrumentReset()
		}
	}

	ent.setState(StateBusy)
	ent.holder = owner
	ent.lastError = ""

	log.WithComponent("instrument").Debug().
		Str("event", "instrument.acquired").
		Str(log.FieldInstrumentID, id).
		Str("owner", owner).
		Msg("lease acquired")

	return &Lease{ent: ent}, nil
}

func (e *entry) holderSnapshot() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holder == "" {
		return "unknown"
	}
	return e.holder
}

// Reset forces a driver reset. The instrument must not be leased.
func (m *Manager) Reset(ctx context.Context, id string) error {
	ent, err := m.entryFor(id)
	if err != nil {
		return err
	}

	select {
	case ent.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ent.sem }()

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.driver == nil {
		return nil // nothing connected yet
	}
	if err := ent.driver.Reset(ctx); err != nil {
		ent.lastError = err.Error()
		ent.setState(StateError)
		return fmt.Errorf("instrument %s: reset: %w", id, err)
	}
	metrics.InstrumentReset()
	ent.lastError = ""
	ent.setState(StateIdle)
	return nil
}

// Disconnect tears the connection down; the next Acquire reconnects.
func (m *Manager) Disconnect(ctx context.Context, id string) error {
	ent, err := m.entryFor(id)
	if err != nil {
		return err
	}

	select {
	case ent.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ent.sem }()

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.driver != nil {
		if err := ent.driver.Close(); err != nil {
			log.WithComponent("instrument").Warn().
				Err(err).
				Str(log.FieldInstrumentID, id).
				Msg("close failed during disconnect")
		}
		ent.driver = nil
	}
	ent.setState(StateOffline)
	return nil
}

// Status returns a snapshot of every known instrument, configured ids first.
func (m *Manager) Status() []StatusEntry {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	seen := make(map[string]struct{}, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
		seen[e.id] = struct{}{}
	}
	m.mu.Unlock()

	out := make([]StatusEntry, 0, len(entries))
	for _, id := range m.registry.IDs() {
		if _, ok := seen[id]; !ok {
			out = append(out, StatusEntry{ID: id, State: StateOffline})
		}
	}
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, StatusEntry{
			ID:         e.id,
			State:      e.state,
			Holder:     e.holder,
			LastError:  e.lastError,
			LastUsedAt: e.lastUsedAt,
		})
		e.mu.Unlock()
	}
	return out
}

// Shutdown closes every live connection.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		_ = m.Disconnect(ctx, id)
	}
}
