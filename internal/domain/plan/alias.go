// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package plan

import "strings"

// Canonical execute names. CSV-authored plans arrive with arbitrary casing
// and a handful of legacy spellings; everything funnels through
// NormalizeExecuteName before handler lookup.
const (
	ExecPowerSet        = "PowerSet"
	ExecPowerRead       = "PowerRead"
	ExecComPort         = "ComPort"
	ExecConSole         = "ConSole"
	ExecTCPIP           = "TCPIP"
	ExecSFC             = "SFC"
	ExecGetSN           = "GetSN"
	ExecOPJudge         = "OPJudge"
	ExecWait            = "Wait"
	ExecRelay           = "Relay"
	ExecChassisRotation = "ChassisRotation"
	ExecRFMeasurements  = "RF_Measurements"
	ExecL6MPU           = "L6MPU"
	ExecOther           = "Other"
)

// executeAliases maps lower-cased spellings to canonical execute names.
// Keep legacy spellings here, never in the dispatcher.
var executeAliases = map[string]string{
	"powerset":         ExecPowerSet,
	"powerread":        ExecPowerRead,
	"comport":          ExecComPort,
	"com_port":         ExecComPort,
	"console":          ExecConSole,
	"tcpip":            ExecTCPIP,
	"tcp_ip":           ExecTCPIP,
	"sfc":              ExecSFC,
	"getsn":            ExecGetSN,
	"get_sn":           ExecGetSN,
	"opjudge":          ExecOPJudge,
	"op_judge":         ExecOPJudge,
	"wait":             ExecWait,
	"relay":            ExecRelay,
	"chassisrotation":  ExecChassisRotation,
	"chassis_rotation": ExecChassisRotation,
	"rf_measurements":  ExecRFMeasurements,
	"rfmeasurements":   ExecRFMeasurements,
	"l6mpu":            ExecL6MPU,
	"other":            ExecOther,
}

// NormalizeExecuteName resolves an execute name through the alias table.
// The second return is false for unknown names.
func NormalizeExecuteName(name string) (string, bool) {
	canonical, ok := executeAliases[strings.ToLower(strings.TrimSpace(name))]
	return canonical, ok
}

// NormalizeLimitType resolves a limit type string; empty means "none".
func NormalizeLimitType(s string) (LimitType, bool) {
	switch LimitType(strings.ToLower(strings.TrimSpace(s))) {
	case LimitLower:
		return LimitLower, true
	case LimitUpper:
		return LimitUpper, true
	case LimitBoth:
		return LimitBoth, true
	case LimitEquality:
		return LimitEquality, true
	case LimitInequality:
		return LimitInequality, true
	case LimitPartial:
		return LimitPartial, true
	case LimitNone, "":
		return LimitNone, true
	}
	return "", false
}

// NormalizeValueType resolves a value type string; empty means "string".
func NormalizeValueType(s string) (ValueType, bool) {
	switch ValueType(strings.ToLower(strings.TrimSpace(s))) {
	case ValueString, "":
		return ValueString, true
	case ValueInteger:
		return ValueInteger, true
	case ValueFloat:
		return ValueFloat, true
	}
	return "", false
}
