// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
)

func f(v float64) *float64 { return &v }

func TestNoneAlwaysPasses(t *testing.T) {
	for _, measured := range []string{"12.0", "garbage", "", "NaN"} {
		v := Check(measured, Limits{LimitType: plan.LimitNone, ValueType: plan.ValueFloat})
		assert.True(t, v.Pass, "measured %q", measured)
	}
}

func TestBothInclusiveBounds(t *testing.T) {
	lim := Limits{Lower: f(11.5), Upper: f(12.5), LimitType: plan.LimitBoth, ValueType: plan.ValueFloat}

	assert.True(t, Check("12.01", lim).Pass)
	// Exactly at the bounds: PASS (inclusive).
	assert.True(t, Check("11.5", lim).Pass)
	assert.True(t, Check("12.5", lim).Pass)

	v := Check("13.10", lim)
	assert.False(t, v.Pass)
	assert.Equal(t, "13.10 not in [11.5,12.5]", v.Reason)
}

func TestBothMissingBound(t *testing.T) {
	v := Check("12.0", Limits{Lower: f(11.5), LimitType: plan.LimitBoth, ValueType: plan.ValueFloat})
	assert.False(t, v.Pass)
	assert.Equal(t, "missing bound", v.Reason)
}

func TestLowerUpper(t *testing.T) {
	low := Limits{Lower: f(5), LimitType: plan.LimitLower, ValueType: plan.ValueFloat}
	assert.True(t, Check("5", low).Pass)
	assert.True(t, Check("9.99", low).Pass)
	v := Check("4.9", low)
	assert.False(t, v.Pass)
	assert.Equal(t, "4.9 < 5", v.Reason)

	up := Limits{Upper: f(5), LimitType: plan.LimitUpper, ValueType: plan.ValueFloat}
	assert.True(t, Check("5", up).Pass)
	v = Check("5.1", up)
	assert.False(t, v.Pass)
	assert.Equal(t, "5.1 > 5", v.Reason)
}

func TestFloatParsing(t *testing.T) {
	lim := Limits{Lower: f(0), LimitType: plan.LimitLower, ValueType: plan.ValueFloat}

	// Scientific notation parses.
	assert.True(t, Check("1e3", lim).Pass)

	// NaN and infinities parse but are non-finite: FAIL.
	assert.False(t, Check("NaN", lim).Pass)
	assert.Equal(t, "non-finite value", Check("NaN", lim).Reason)
	assert.False(t, Check("+Inf", lim).Pass)

	assert.Equal(t, "non-numeric value", Check("12V", lim).Reason)
}

func TestIntegerCoercion(t *testing.T) {
	lim := Limits{Lower: f(10), Upper: f(20), LimitType: plan.LimitBoth, ValueType: plan.ValueInteger}
	assert.True(t, Check("15", lim).Pass)
	assert.True(t, Check("10", lim).Pass)
	assert.False(t, Check("21", lim).Pass)
	assert.Equal(t, "non-integer value", Check("15.5", lim).Reason)
	assert.Equal(t, "non-integer value", Check("abc", lim).Reason)
}

func TestEqualityTyped(t *testing.T) {
	// String equality is verbatim.
	v := Check("OK", Limits{Eq: "OK", LimitType: plan.LimitEquality, ValueType: plan.ValueString})
	assert.True(t, v.Pass)
	v = Check("NG", Limits{Eq: "OK", LimitType: plan.LimitEquality, ValueType: plan.ValueString})
	assert.False(t, v.Pass)
	assert.Equal(t, "NG != OK", v.Reason)

	// Integer equality compares values, not spellings.
	v = Check("007", Limits{Eq: "7", LimitType: plan.LimitEquality, ValueType: plan.ValueInteger})
	assert.True(t, v.Pass)

	// Float equality is bit-exact after parsing: "12.5" == "12.50".
	v = Check("12.50", Limits{Eq: "12.5", LimitType: plan.LimitEquality, ValueType: plan.ValueFloat})
	assert.True(t, v.Pass)
	// But nearly-equal is FAIL: no epsilon.
	v = Check("12.500000000000001", Limits{Eq: "12.5", LimitType: plan.LimitEquality, ValueType: plan.ValueFloat})
	assert.False(t, v.Pass)
}

func TestInequalityIsNegatedEquality(t *testing.T) {
	eqLim := Limits{Eq: "7", LimitType: plan.LimitEquality, ValueType: plan.ValueInteger}
	neqLim := Limits{Eq: "7", LimitType: plan.LimitInequality, ValueType: plan.ValueInteger}

	for _, measured := range []string{"7", "8", "-7", "007"} {
		eq := Check(measured, eqLim)
		neq := Check(measured, neqLim)
		assert.NotEqual(t, eq.Pass, neq.Pass, "measured %q", measured)
	}
}

func TestPartialIsSubstringForAllValueTypes(t *testing.T) {
	for _, vt := range []plan.ValueType{plan.ValueString, plan.ValueInteger, plan.ValueFloat} {
		v := Check("456", Limits{Eq: "456", LimitType: plan.LimitPartial, ValueType: vt})
		assert.True(t, v.Pass, "value_type %s", vt)

		v = Check("a456b", Limits{Eq: "456", LimitType: plan.LimitPartial, ValueType: vt})
		assert.True(t, v.Pass, "value_type %s", vt)

		v = Check("123", Limits{Eq: "456", LimitType: plan.LimitPartial, ValueType: vt})
		assert.False(t, v.Pass, "value_type %s", vt)
		assert.Equal(t, "456 not found in 123", v.Reason)
	}
}

func TestStringBoundsCompareAsStrings(t *testing.T) {
	// value_type=string with numeric bounds compares lexicographically
	// against the bound's string form (legacy rule).
	lim := Limits{Lower: f(100), LimitType: plan.LimitLower, ValueType: plan.ValueString}
	assert.True(t, Check("101", lim).Pass)
	assert.True(t, Check("2", lim).Pass) // "2" > "100" lexicographically
	assert.False(t, Check("0", lim).Pass)
}

func TestKernelIsPure(t *testing.T) {
	lim := Limits{Lower: f(1), Upper: f(2), LimitType: plan.LimitBoth, ValueType: plan.ValueFloat}
	first := Check("1.5", lim)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Check("1.5", lim))
	}
}

func TestFromPoint(t *testing.T) {
	p := &plan.Point{
		LowerLimit: f(1), UpperLimit: f(2), EqLimit: "x",
		LimitType: plan.LimitBoth, ValueType: plan.ValueFloat,
	}
	lim := FromPoint(p)
	assert.Equal(t, p.LowerLimit, lim.Lower)
	assert.Equal(t, p.UpperLimit, lim.Upper)
	assert.Equal(t, "x", lim.Eq)
}
