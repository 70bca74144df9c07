// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package plan defines the test-plan data model: the ordered test points a
// session executes, their limit semantics, and the CSV column mapping used
// by the external plan parser.
package plan

import (
	"fmt"
	"sort"
)

// LimitType selects one of the seven comparison rules applied to a measured value.
type LimitType string

const (
	LimitLower      LimitType = "lower"
	LimitUpper      LimitType = "upper"
	LimitBoth       LimitType = "both"
	LimitEquality   LimitType = "equality"
	LimitInequality LimitType = "inequality"
	LimitPartial    LimitType = "partial"
	LimitNone       LimitType = "none"
)

// ValueType selects one of the three coercion rules applied before comparison.
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueInteger ValueType = "integer"
	ValueFloat   ValueType = "float"
)

// Well-known parameter keys. Handlers read these from Point.Parameters after
// use_result substitution.
const (
	ParamChannel  = "Channel"
	ParamType     = "Type"
	ParamSetVolt  = "SetVolt"
	ParamSetCurr  = "SetCurr"
	ParamItem     = "Item"
	ParamBaud     = "Baud"
	ParamCommand  = "Command"
	ParamPort     = "Port"
	ParamHost     = "Host"
	ParamTimeout  = "Timeout"
	ParamWaitMSec = "WaitmSec"
	ParamPrompt   = "Prompt"
	ParamRelayID  = "RelayId"
	ParamState    = "State"

	// ParamUpstreamValue carries the measured value of the point named by
	// use_result for handlers that consume it explicitly.
	ParamUpstreamValue = "UpstreamValue"
)

// Point is one executable row of a test plan.
type Point struct {
	ID            string            `json:"id"`
	ItemNo        int               `json:"item_no"`
	ItemKey       string            `json:"item_key,omitempty"`
	ItemName      string            `json:"item_name"`
	ExecuteName   string            `json:"execute_name"`
	SwitchMode    string            `json:"switch_mode,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Command       string            `json:"command,omitempty"`
	TimeoutMS     int               `json:"timeout,omitempty"`
	WaitMSec      int               `json:"wait_msec,omitempty"`
	UseResult     string            `json:"use_result,omitempty"`
	LowerLimit    *float64          `json:"lower_limit,omitempty"`
	UpperLimit    *float64          `json:"upper_limit,omitempty"`
	EqLimit       string            `json:"eq_limit,omitempty"`
	LimitType     LimitType         `json:"limit_type"`
	ValueType     ValueType         `json:"value_type"`
	Unit          string            `json:"unit,omitempty"`
	Enabled       bool              `json:"enabled"`
	SequenceOrder int               `json:"sequence_order"`
}

// Param returns the named parameter, falling back to the hoisted convenience
// fields for the frequent keys.
func (p *Point) Param(key string) (string, bool) {
	if v, ok := p.Parameters[key]; ok {
		return v, true
	}
	if key == ParamCommand && p.Command != "" {
		return p.Command, true
	}
	return "", false
}

// SortExecutionOrder sorts points in place by (sequence_order, item_no).
func SortExecutionOrder(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].SequenceOrder != points[j].SequenceOrder {
			return points[i].SequenceOrder < points[j].SequenceOrder
		}
		return points[i].ItemNo < points[j].ItemNo
	})
}

// Validate checks plan-wide invariants: item_no uniqueness and trivially
// broken use_result self-references. A use_result naming a disabled or
// absent point stays valid here; such points skip at run time with no
// upstream value.
func Validate(points []Point) error {
	seen := make(map[int]struct{}, len(points))
	for i := range points {
		p := &points[i]
		if _, dup := seen[p.ItemNo]; dup {
			return fmt.Errorf("plan: duplicate item_no %d", p.ItemNo)
		}
		seen[p.ItemNo] = struct{}{}

		if p.UseResult != "" && p.UseResult == p.ItemName {
			return fmt.Errorf("plan: item %d (%s): use_result references itself", p.ItemNo, p.ItemName)
		}
	}
	return nil
}

// EnabledOnly returns the enabled points, preserving order.
func EnabledOnly(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
