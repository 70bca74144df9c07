// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/webpdtool/internal/instrument"
)

// ChassisRotationHandler drives the rotating fixture. Operation selects
// rotate_left/rotate_right/home/get_angle; rotations need an Angle.
type ChassisRotationHandler struct {
	leases leaseSet
	driver instrument.RotationDriver

	operation string
	angle     float64
}

func (h *ChassisRotationHandler) Prepare(ctx context.Context, env *Env) error {
	operation, err := env.RequireParam("Operation")
	if err != nil {
		return err
	}
	h.operation = strings.ToLower(operation)

	switch h.operation {
	case "rotate_left", "rotate_right":
		angleStr, err := env.RequireParam("Angle")
		if err != nil {
			return err
		}
		if h.angle, err = strconv.ParseFloat(angleStr, 64); err != nil || h.angle < 0 {
			return fmt.Errorf("invalid Angle %q", angleStr)
		}
	case "home", "get_angle":
	default:
		return fmt.Errorf("invalid Operation %q", operation)
	}

	lease, err := h.leases.acquire(ctx, env, env.Point.SwitchMode)
	if err != nil {
		return err
	}
	driver, ok := lease.Driver().(instrument.RotationDriver)
	if !ok {
		return fmt.Errorf("instrument %s cannot rotate", lease.ID())
	}
	h.driver = driver
	return nil
}

func (h *ChassisRotationHandler) Execute(ctx context.Context, env *Env) (string, error) {
	ioCtx, cancel := context.WithTimeout(ctx, env.IOTimeout(30*time.Second))
	defer cancel()

	var (
		status string
		err    error
	)
	switch h.operation {
	case "rotate_left":
		status, err = h.driver.Rotate(ioCtx, "ccw", h.angle)
	case "rotate_right":
		status, err = h.driver.Rotate(ioCtx, "cw", h.angle)
	case "home":
		status, err = h.driver.Home(ioCtx)
	case "get_angle":
		var angle float64
		angle, err = h.driver.Angle(ioCtx)
		status = strconv.FormatFloat(angle, 'f', 1, 64)
	}
	if err != nil {
		h.leases.markError(err)
		return "", err
	}
	return status, nil
}

func (h *ChassisRotationHandler) Cleanup(ctx context.Context, env *Env) error {
	h.leases.releaseAll()
	return nil
}
