// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"sort"
	"sync"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
)

// Registry maps canonical execute names to handler constructors. Handlers
// are constructed per point run; they must not be shared across runs.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Handler)}
}

// Register binds a canonical execute name to a constructor. Later
// registrations replace earlier ones.
func (r *Registry) Register(executeName string, factory func() Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[executeName] = factory
}

// New constructs a handler for the canonical execute name.
func (r *Registry) New(executeName string) (Handler, bool) {
	r.mu.RLock()
	factory, ok := r.factories[executeName]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Names lists the registered execute names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the full production handler catalogue.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(plan.ExecPowerSet, func() Handler { return &PowerSetHandler{} })
	r.Register(plan.ExecPowerRead, func() Handler { return &PowerReadHandler{} })
	r.Register(plan.ExecComPort, func() Handler { return &ComPortHandler{} })
	r.Register(plan.ExecConSole, func() Handler { return &ConsoleHandler{} })
	r.Register(plan.ExecTCPIP, func() Handler { return &TCPIPHandler{} })
	r.Register(plan.ExecSFC, func() Handler { return &SFCHandler{} })
	r.Register(plan.ExecGetSN, func() Handler { return &GetSNHandler{} })
	r.Register(plan.ExecOPJudge, func() Handler { return &OPJudgeHandler{} })
	r.Register(plan.ExecWait, func() Handler { return &WaitHandler{} })
	r.Register(plan.ExecRelay, func() Handler { return &RelayHandler{} })
	r.Register(plan.ExecChassisRotation, func() Handler { return &ChassisRotationHandler{} })
	r.Register(plan.ExecRFMeasurements, func() Handler { return &RFMeasurementsHandler{} })
	r.Register(plan.ExecL6MPU, func() Handler { return &L6MPUHandler{} })
	r.Register(plan.ExecOther, func() Handler { return &OtherHandler{} })
	return r
}
