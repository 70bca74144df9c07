// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package validate implements the PDTool4 limit-check contract: a pure
// function mapping a measured value plus plan limits to PASS/FAIL with a
// human-readable reason. All other components defer to it; handlers never
// decide out-of-limit themselves.
//
// Float equality is bit-exact after strconv.ParseFloat, NOT epsilon-based.
// This is a legacy-compatibility requirement: epsilon comparison silently
// changes pass rates on real hardware. Do not "fix" it here.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
)

// Limits is the plan-side input to Check.
type Limits struct {
	Lower     *float64
	Upper     *float64
	Eq        string
	LimitType plan.LimitType
	ValueType plan.ValueType
}

// Verdict is the kernel's decision.
type Verdict struct {
	Pass   bool
	Reason string // empty on PASS
}

func pass() Verdict { return Verdict{Pass: true} }

func fail(format string, args ...any) Verdict {
	return Verdict{Pass: false, Reason: fmt.Sprintf(format, args...)}
}

func formatBound(b float64) string { return strconv.FormatFloat(b, 'g', -1, 64) }

// Check applies the limit rule to a measured value. The dispatcher is
// responsible for the pre-check (empty value, "Error:" prefix, "No
// instrument found" sentinel map to ERROR and never reach the kernel).
func Check(measured string, lim Limits) Verdict {
	switch lim.LimitType {
	case plan.LimitNone, "":
		// Always PASS, before any coercion.
		return pass()
	case plan.LimitPartial:
		// String containment for every value type: integer and float fall
		// back to the string form of both sides. CSV-authored plans rely
		// on this.
		if strings.Contains(measured, lim.Eq) {
			return pass()
		}
		return fail("%s not found in %s", lim.Eq, measured)
	}

	switch lim.ValueType {
	case plan.ValueString, "":
		return checkString(measured, lim)
	case plan.ValueInteger:
		return checkInteger(measured, lim)
	case plan.ValueFloat:
		return checkFloat(measured, lim)
	default:
		return fail("unknown value_type %q", string(lim.ValueType))
	}
}

func checkString(measured string, lim Limits) Verdict {
	switch lim.LimitType {
	case plan.LimitEquality:
		if measured == lim.Eq {
			return pass()
		}
		return fail("%s != %s", measured, lim.Eq)
	case plan.LimitInequality:
		if measured != lim.Eq {
			return pass()
		}
		return fail("%s == %s", measured, lim.Eq)
	case plan.LimitLower, plan.LimitUpper, plan.LimitBoth:
		// Bounds compare as strings for value_type=string (legacy rule).
		return checkBounds(measured, lim,
			func(bound float64) int { return strings.Compare(measured, formatBound(bound)) })
	default:
		return fail("unknown limit_type %q", string(lim.LimitType))
	}
}

func checkInteger(measured string, lim Limits) Verdict {
	m, err := strconv.ParseInt(strings.TrimSpace(measured), 10, 64)
	if err != nil {
		return fail("non-integer value")
	}

	switch lim.LimitType {
	case plan.LimitEquality, plan.LimitInequality:
		eq, err := strconv.ParseInt(strings.TrimSpace(lim.Eq), 10, 64)
		if err != nil {
			return fail("invalid equality limit %q", lim.Eq)
		}
		if (m == eq) == (lim.LimitType == plan.LimitEquality) {
			return pass()
		}
		if lim.LimitType == plan.LimitEquality {
			return fail("%s != %s", measured, lim.Eq)
		}
		return fail("%s == %s", measured, lim.Eq)
	case plan.LimitLower, plan.LimitUpper, plan.LimitBoth:
		return checkBounds(measured, lim, func(bound float64) int {
			mf := float64(m)
			switch {
			case mf < bound:
				return -1
			case mf > bound:
				return 1
			}
			return 0
		})
	default:
		return fail("unknown limit_type %q", string(lim.LimitType))
	}
}

func checkFloat(measured string, lim Limits) Verdict {
	m, err := strconv.ParseFloat(strings.TrimSpace(measured), 64)
	if err != nil {
		return fail("non-numeric value")
	}
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return fail("non-finite value")
	}

	switch lim.LimitType {
	case plan.LimitEquality, plan.LimitInequality:
		eq, err := strconv.ParseFloat(strings.TrimSpace(lim.Eq), 64)
		if err != nil {
			return fail("invalid equality limit %q", lim.Eq)
		}
		// Bit-exact comparison, see package doc.
		if (m == eq) == (lim.LimitType == plan.LimitEquality) {
			return pass()
		}
		if lim.LimitType == plan.LimitEquality {
			return fail("%s != %s", measured, lim.Eq)
		}
		return fail("%s == %s", measured, lim.Eq)
	case plan.LimitLower, plan.LimitUpper, plan.LimitBoth:
		return checkBounds(measured, lim, func(bound float64) int {
			switch {
			case m < bound:
				return -1
			case m > bound:
				return 1
			}
			return 0
		})
	default:
		return fail("unknown limit_type %q", string(lim.LimitType))
	}
}

// checkBounds applies lower/upper/both with inclusive bounds. cmp reports
// the measured value's ordering relative to a bound (-1, 0, +1).
func checkBounds(measured string, lim Limits, cmp func(bound float64) int) Verdict {
	switch lim.LimitType {
	case plan.LimitLower:
		if lim.Lower == nil {
			return fail("missing bound")
		}
		if cmp(*lim.Lower) >= 0 {
			return pass()
		}
		return fail("%s < %s", measured, formatBound(*lim.Lower))
	case plan.LimitUpper:
		if lim.Upper == nil {
			return fail("missing bound")
		}
		if cmp(*lim.Upper) <= 0 {
			return pass()
		}
		return fail("%s > %s", measured, formatBound(*lim.Upper))
	default: // both
		if lim.Lower == nil || lim.Upper == nil {
			return fail("missing bound")
		}
		if cmp(*lim.Lower) >= 0 && cmp(*lim.Upper) <= 0 {
			return pass()
		}
		return fail("%s not in [%s,%s]", measured, formatBound(*lim.Lower), formatBound(*lim.Upper))
	}
}

// FromPoint builds the kernel input from a plan point.
func FromPoint(p *plan.Point) Limits {
	return Limits{
		Lower:     p.LowerLimit,
		Upper:     p.UpperLimit,
		Eq:        p.EqLimit,
		LimitType: p.LimitType,
		ValueType: p.ValueType,
	}
}
