// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
)

// GetSNHandler returns the session's serial number. Plans use it to feed
// downstream points via use_result.
type GetSNHandler struct{}

func (h *GetSNHandler) Prepare(ctx context.Context, env *Env) error {
	if env.SerialNumber == "" {
		return errors.New("session has no serial number")
	}
	return nil
}

func (h *GetSNHandler) Execute(ctx context.Context, env *Env) (string, error) {
	return env.SerialNumber, nil
}

func (h *GetSNHandler) Cleanup(ctx context.Context, env *Env) error { return nil }

// OPJudgeHandler asks the station operator for an OK/NG decision. NG fails
// the point and aborts the session.
type OPJudgeHandler struct {
	prompt string
}

func (h *OPJudgeHandler) Prepare(ctx context.Context, env *Env) error {
	prompt, err := env.RequireParam(plan.ParamPrompt)
	if err != nil {
		return err
	}
	if env.Prompter == nil {
		return errors.New("no operator prompter attached")
	}
	h.prompt = prompt
	return nil
}

func (h *OPJudgeHandler) Execute(ctx context.Context, env *Env) (string, error) {
	ok, err := env.Prompter.Prompt(ctx, env.SessionID, h.prompt)
	if err != nil {
		return "", fmt.Errorf("operator prompt: %w", err)
	}
	if !ok {
		return "NG", ErrAbortSession
	}
	return "OK", nil
}

func (h *OPJudgeHandler) Cleanup(ctx context.Context, env *Env) error { return nil }

// WaitHandler sleeps for WaitmSec milliseconds, honouring cancellation.
type WaitHandler struct {
	wait time.Duration
}

func (h *WaitHandler) Prepare(ctx context.Context, env *Env) error {
	if v, ok := env.Param(plan.ParamWaitMSec); ok {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid WaitmSec %q", v)
		}
		h.wait = time.Duration(ms) * time.Millisecond
		return nil
	}
	if env.Point.WaitMSec > 0 {
		h.wait = time.Duration(env.Point.WaitMSec) * time.Millisecond
		return nil
	}
	return errors.New("missing required parameter WaitmSec")
}

func (h *WaitHandler) Execute(ctx context.Context, env *Env) (string, error) {
	timer := time.NewTimer(h.wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return "OK", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *WaitHandler) Cleanup(ctx context.Context, env *Env) error { return nil }

// OtherHandler is the escape hatch for plan rows that carry their own
// command against whatever instrument switch_mode names. Without a command
// it echoes the Value parameter, letting plans inject constants.
type OtherHandler struct {
	bus   commandLease
	cmd   string
	value string
}

func (h *OtherHandler) Prepare(ctx context.Context, env *Env) error {
	if cmd, ok := env.Param(plan.ParamCommand); ok && cmd != "" {
		h.cmd = cmd
		return h.bus.prepare(ctx, env)
	}
	if v, ok := env.Param("Value"); ok {
		h.value = v
		return nil
	}
	if v, ok := env.Param(plan.ParamUpstreamValue); ok {
		h.value = v
		return nil
	}
	return errors.New("missing required parameter Command")
}

func (h *OtherHandler) Execute(ctx context.Context, env *Env) (string, error) {
	if h.cmd != "" {
		return h.bus.query(ctx, env, h.cmd, 10*time.Second)
	}
	return h.value, nil
}

func (h *OtherHandler) Cleanup(ctx context.Context, env *Env) error {
	h.bus.cleanup()
	return nil
}
