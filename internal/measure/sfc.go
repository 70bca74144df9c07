// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"errors"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
)

// SFCHandler invokes the external MES service. The Operation parameter
// selects the call; every other resolved parameter travels as payload,
// with the session identity injected.
type SFCHandler struct {
	operation string
	payload   map[string]string
}

func (h *SFCHandler) Prepare(ctx context.Context, env *Env) error {
	operation, err := env.RequireParam("Operation")
	if err != nil {
		return err
	}
	if env.SFC == nil {
		return errors.New("no sfc client configured")
	}
	h.operation = operation

	h.payload = make(map[string]string, len(env.Params)+2)
	for k, v := range env.Params {
		if k == "Operation" || k == plan.ParamUpstreamValue {
			continue
		}
		h.payload[k] = v
	}
	h.payload["serial_number"] = env.SerialNumber
	h.payload["station_id"] = env.StationID
	if upstream, ok := env.Params[plan.ParamUpstreamValue]; ok {
		h.payload["upstream_value"] = upstream
	}
	return nil
}

func (h *SFCHandler) Execute(ctx context.Context, env *Env) (string, error) {
	return env.SFC.Invoke(ctx, env.SessionID, h.operation, h.payload)
}

func (h *SFCHandler) Cleanup(ctx context.Context, env *Env) error { return nil }
