// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package plan

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// csvHeader is the recognised column set of CSV-authored plans, in writing
// order. "case" is the legacy alias of switch_mode.
var csvHeader = []string{
	"ID", "ItemKey", "ItemName", "ValueType", "LimitType", "EqLimit",
	"LL", "UL", "ExecuteName", "case", "Command", "Timeout",
	"UseResult", "WaitmSec", "Unit", "Parameters",
}

// ReadCSV decodes points from the external parser's CSV form. Rows keep
// their file order as sequence_order; points are enabled by default.
func ReadCSV(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("plan csv: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var points []Point
	for seq := 0; ; seq++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("plan csv: row %d: %w", seq+1, err)
		}

		p := Point{Enabled: true, SequenceOrder: seq}

		if v := field(row, "ID"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("plan csv: row %d: ID %q is not an integer", seq+1, v)
			}
			p.ItemNo = n
			p.ID = v
		}
		p.ItemKey = field(row, "ItemKey")
		p.ItemName = field(row, "ItemName")

		vt, ok := NormalizeValueType(field(row, "ValueType"))
		if !ok {
			return nil, fmt.Errorf("plan csv: row %d: unknown ValueType %q", seq+1, field(row, "ValueType"))
		}
		p.ValueType = vt

		lt, ok := NormalizeLimitType(field(row, "LimitType"))
		if !ok {
			return nil, fmt.Errorf("plan csv: row %d: unknown LimitType %q", seq+1, field(row, "LimitType"))
		}
		p.LimitType = lt

		p.EqLimit = field(row, "EqLimit")
		if v := field(row, "LL"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("plan csv: row %d: LL %q is not numeric", seq+1, v)
			}
			p.LowerLimit = &f
		}
		if v := field(row, "UL"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("plan csv: row %d: UL %q is not numeric", seq+1, v)
			}
			p.UpperLimit = &f
		}

		p.ExecuteName = field(row, "ExecuteName")
		p.SwitchMode = field(row, "case")
		p.Command = field(row, "Command")
		if v := field(row, "Timeout"); v != "" {
			p.TimeoutMS, _ = strconv.Atoi(v)
		}
		p.UseResult = field(row, "UseResult")
		if v := field(row, "WaitmSec"); v != "" {
			p.WaitMSec, _ = strconv.Atoi(v)
		}
		p.Unit = field(row, "Unit")

		if v := field(row, "Parameters"); v != "" {
			params := map[string]string{}
			if err := json.Unmarshal([]byte(v), &params); err != nil {
				return nil, fmt.Errorf("plan csv: row %d: Parameters: %w", seq+1, err)
			}
			p.Parameters = params
		}

		points = append(points, p)
	}
	return points, nil
}

// WriteCSV encodes points back to the recognised column set. ReadCSV and
// WriteCSV round-trip: WriteCSV(ReadCSV(x)) reproduces the recognised
// columns of x byte for byte.
func WriteCSV(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("plan csv: write header: %w", err)
	}

	fmtBound := func(b *float64) string {
		if b == nil {
			return ""
		}
		return strconv.FormatFloat(*b, 'g', -1, 64)
	}
	fmtInt := func(n int) string {
		if n == 0 {
			return ""
		}
		return strconv.Itoa(n)
	}

	for i := range points {
		p := &points[i]
		params := ""
		if len(p.Parameters) > 0 {
			// json.Marshal emits map keys sorted, so the column is stable.
			buf, err := json.Marshal(p.Parameters)
			if err != nil {
				return fmt.Errorf("plan csv: item %d: Parameters: %w", p.ItemNo, err)
			}
			params = string(buf)
		}

		row := []string{
			strconv.Itoa(p.ItemNo),
			p.ItemKey,
			p.ItemName,
			string(p.ValueType),
			string(p.LimitType),
			p.EqLimit,
			fmtBound(p.LowerLimit),
			fmtBound(p.UpperLimit),
			p.ExecuteName,
			p.SwitchMode,
			p.Command,
			fmtInt(p.TimeoutMS),
			p.UseResult,
			fmtInt(p.WaitMSec),
			p.Unit,
			params,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("plan csv: item %d: %w", p.ItemNo, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
