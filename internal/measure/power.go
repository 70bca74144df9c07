// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/instrument"
)

// PowerSetHandler programs a power supply channel. The instrument comes
// from the point's switch_mode.
type PowerSetHandler struct {
	leases leaseSet
	driver instrument.PowerDriver

	channel string
	volt    float64
	curr    float64
}

func (h *PowerSetHandler) Prepare(ctx context.Context, env *Env) error {
	voltStr, err := env.RequireParam(plan.ParamSetVolt)
	if err != nil {
		return err
	}
	currStr, err := env.RequireParam(plan.ParamSetCurr)
	if err != nil {
		return err
	}
	if h.volt, err = strconv.ParseFloat(voltStr, 64); err != nil {
		return fmt.Errorf("invalid SetVolt %q", voltStr)
	}
	if h.curr, err = strconv.ParseFloat(currStr, 64); err != nil {
		return fmt.Errorf("invalid SetCurr %q", currStr)
	}
	h.channel, _ = env.Param(plan.ParamChannel)

	lease, err := h.leases.acquire(ctx, env, env.Point.SwitchMode)
	if err != nil {
		return err
	}
	driver, ok := lease.Driver().(instrument.PowerDriver)
	if !ok {
		return fmt.Errorf("instrument %s cannot set power", lease.ID())
	}
	h.driver = driver
	return nil
}

func (h *PowerSetHandler) Execute(ctx context.Context, env *Env) (string, error) {
	ioCtx, cancel := context.WithTimeout(ctx, env.IOTimeout(10*time.Second))
	defer cancel()
	if err := h.driver.SetOutput(ioCtx, h.channel, h.volt, h.curr); err != nil {
		h.leases.markError(err)
		return "", err
	}
	return "OK", nil
}

func (h *PowerSetHandler) Cleanup(ctx context.Context, env *Env) error {
	h.leases.releaseAll()
	return nil
}

// PowerReadHandler queries a DMM/DAQ reading.
type PowerReadHandler struct {
	leases leaseSet
	driver instrument.MeterDriver

	item    string
	channel string
	typ     string
}

func (h *PowerReadHandler) Prepare(ctx context.Context, env *Env) error {
	item, err := env.RequireParam(plan.ParamItem)
	if err != nil {
		return err
	}
	h.item = item
	h.channel, _ = env.Param(plan.ParamChannel)
	h.typ, _ = env.Param(plan.ParamType)

	lease, err := h.leases.acquire(ctx, env, env.Point.SwitchMode)
	if err != nil {
		return err
	}
	driver, ok := lease.Driver().(instrument.MeterDriver)
	if !ok {
		return fmt.Errorf("instrument %s cannot read measurements", lease.ID())
	}
	h.driver = driver
	return nil
}

func (h *PowerReadHandler) Execute(ctx context.Context, env *Env) (string, error) {
	ioCtx, cancel := context.WithTimeout(ctx, env.IOTimeout(10*time.Second))
	defer cancel()
	value, err := h.driver.Read(ioCtx, h.item, h.channel, h.typ)
	if err != nil {
		h.leases.markError(err)
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (h *PowerReadHandler) Cleanup(ctx context.Context, env *Env) error {
	h.leases.releaseAll()
	return nil
}

// RFMeasurementsHandler configures and reads an RF analyser over its
// command bus.
type RFMeasurementsHandler struct {
	leases leaseSet
	driver instrument.CommandDriver

	frequency string
	bandwidth string
	typ       string
}

func (h *RFMeasurementsHandler) Prepare(ctx context.Context, env *Env) error {
	freq, err := env.RequireParam("Frequency")
	if err != nil {
		return err
	}
	h.frequency = freq
	h.bandwidth, _ = env.Param("Bandwidth")
	h.typ, _ = env.Param(plan.ParamType)

	lease, err := h.leases.acquire(ctx, env, env.Point.SwitchMode)
	if err != nil {
		return err
	}
	driver, ok := lease.Driver().(instrument.CommandDriver)
	if !ok {
		return fmt.Errorf("instrument %s has no command bus", lease.ID())
	}
	h.driver = driver
	return nil
}

func (h *RFMeasurementsHandler) Execute(ctx context.Context, env *Env) (string, error) {
	ioCtx, cancel := context.WithTimeout(ctx, env.IOTimeout(15*time.Second))
	defer cancel()

	if err := h.driver.Write(ioCtx, "SENS:FREQ "+h.frequency); err != nil {
		h.leases.markError(err)
		return "", err
	}
	if h.bandwidth != "" {
		if err := h.driver.Write(ioCtx, "SENS:BAND "+h.bandwidth); err != nil {
			h.leases.markError(err)
			return "", err
		}
	}
	query := "READ?"
	if h.typ != "" {
		query = "MEAS:" + strings.ToUpper(h.typ) + "?"
	}
	value, err := h.driver.Query(ioCtx, query)
	if err != nil {
		h.leases.markError(err)
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (h *RFMeasurementsHandler) Cleanup(ctx context.Context, env *Env) error {
	h.leases.releaseAll()
	return nil
}
