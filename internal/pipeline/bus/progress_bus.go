// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus fans session progress snapshots out to in-process observers:
// the HTTP status endpoint polls Latest, push consumers (web UI streams)
// subscribe for a channel. Publishing never blocks the session executor.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
	"github.com/ManuGH/webpdtool/internal/log"
	"github.com/ManuGH/webpdtool/internal/metrics"
)

const dropLogEvery = 100

// ProgressBus is the in-memory snapshot fan-out. Slow subscribers miss
// intermediate snapshots; Latest always reflects the newest publish.
type ProgressBus struct {
	mu     sync.RWMutex
	latest map[string]model.Snapshot
	subs   []chan model.Snapshot

	dropCount atomic.Uint64
}

// NewProgressBus returns an empty bus.
func NewProgressBus() *ProgressBus {
	return &ProgressBus{latest: make(map[string]model.Snapshot)}
}

// Publish records the snapshot and offers it to every subscriber without
// blocking. A full subscriber channel drops the snapshot for that
// subscriber only.
func (b *ProgressBus) Publish(snapshot model.Snapshot) {
	b.mu.Lock()
	b.latest[snapshot.SessionID] = snapshot
	subs := append([]chan model.Snapshot(nil), b.subs...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
			count := b.dropCount.Add(1)
			if count%dropLogEvery == 0 {
				log.WithComponent("bus").Warn().
					Str(log.FieldSessionID, snapshot.SessionID).
					Uint64("dropped", count).
					Msg("progress snapshot dropped for slow subscriber")
			}
		}
	}
	metrics.ProgressPublished()
}

// Latest returns the most recent snapshot for a session.
func (b *ProgressBus) Latest(sessionID string) (model.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.latest[sessionID]
	return s, ok
}

// Subscribe returns a buffered channel of snapshots and an unsubscribe
// function. The channel is closed on unsubscribe.
func (b *ProgressBus) Subscribe() (<-chan model.Snapshot, func()) {
	ch := make(chan model.Snapshot, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			out := b.subs[:0]
			for _, c := range b.subs {
				if c != ch {
					out = append(out, c)
				}
			}
			b.subs = out
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Forget drops the cached snapshot of a finished session.
func (b *ProgressBus) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.latest, sessionID)
}

var _ ports.ProgressBus = (*ProgressBus)(nil)
