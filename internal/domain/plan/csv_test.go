// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package plan

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `ID,ItemKey,ItemName,ValueType,LimitType,EqLimit,LL,UL,ExecuteName,case,Command,Timeout,UseResult,WaitmSec,Unit,Parameters
1,PWR,12V_RAIL,float,both,,11.5,12.5,PowerRead,DAQ973A,,5000,,,V,"{""Channel"":""101"",""Item"":""volt"",""Type"":""DC""}"
2,,SN_READ,string,none,,,,GetSN,,,,,,,
3,,SN_CHECK,string,partial,SN,,,Other,,,,SN_READ,,,
`

func TestReadCSV(t *testing.T) {
	points, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, points, 3)

	p := points[0]
	assert.Equal(t, 1, p.ItemNo)
	assert.Equal(t, "12V_RAIL", p.ItemName)
	assert.Equal(t, ValueFloat, p.ValueType)
	assert.Equal(t, LimitBoth, p.LimitType)
	require.NotNil(t, p.LowerLimit)
	require.NotNil(t, p.UpperLimit)
	assert.Equal(t, 11.5, *p.LowerLimit)
	assert.Equal(t, 12.5, *p.UpperLimit)
	assert.Equal(t, "PowerRead", p.ExecuteName)
	assert.Equal(t, "DAQ973A", p.SwitchMode)
	assert.Equal(t, 5000, p.TimeoutMS)
	assert.Equal(t, "101", p.Parameters["Channel"])
	assert.True(t, p.Enabled)
	assert.Equal(t, 0, p.SequenceOrder)

	assert.Equal(t, "SN_READ", points[2].UseResult)
	assert.Equal(t, LimitNone, points[1].LimitType)
}

func TestCSVRoundTrip(t *testing.T) {
	points, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, points))

	again, err := ReadCSV(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	if diff := cmp.Diff(points, again); diff != "" {
		t.Fatalf("round-trip mismatch (-first +second):\n%s", diff)
	}

	// Second encode is byte-stable.
	var buf2 bytes.Buffer
	require.NoError(t, WriteCSV(&buf2, again))
	assert.Equal(t, buf.String(), buf2.String())
}

func TestReadCSVRejectsBadRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("ID,ItemName,ValueType,LimitType\nx,foo,float,both\n"))
	require.Error(t, err)

	_, err = ReadCSV(strings.NewReader("ID,ItemName,LL,ValueType,LimitType\n1,foo,low,float,both\n"))
	require.Error(t, err)

	_, err = ReadCSV(strings.NewReader("ID,ItemName,ValueType,LimitType\n1,foo,quantum,both\n"))
	require.Error(t, err)
}
