// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chassis

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	in := Frame{Type: MsgRotate, Body: []byte{dirCW, 0x03, 0x84}}
	wire := in.Encode(nil)

	// sync(4) + length(2) + type(2) + body(3) + crc(2)
	require.Len(t, wire, 13)
	assert.Equal(t, []byte{0xA5, 0xFF, 0x00, 0xCC}, wire[:4])
	assert.Equal(t, []byte{0x00, 0x05}, wire[4:6], "length covers type+body")

	out, err := ReadFrame(bufio.NewReader(bytes.NewReader(wire)))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadFrameSkipsLineNoise(t *testing.T) {
	wire := Frame{Type: MsgAngle}.Encode(nil)
	noisy := append([]byte{0x00, 0xA5, 0x12, 0xA5, 0xFF}, wire...)

	out, err := ReadFrame(bufio.NewReader(bytes.NewReader(noisy)))
	require.NoError(t, err)
	assert.Equal(t, MsgAngle, out.Type)
}

func TestReadFrameRejectsBadCRC(t *testing.T) {
	wire := Frame{Type: MsgDoor, Body: []byte{1}}.Encode(nil)
	wire[len(wire)-1] ^= 0xFF

	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(wire)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadCRC)
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	wire := Frame{Type: MsgDoor, Body: []byte{1}}.Encode(nil)
	wire[4], wire[5] = 0xFF, 0xFF

	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(wire)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOversize)
}

func TestResponseBit(t *testing.T) {
	resp := Frame{Type: MsgRotate | responseBit, Body: []byte{byte(StatusSuccess)}}
	assert.True(t, resp.IsResponse())
	assert.Equal(t, MsgRotate, resp.RequestType())
	assert.Equal(t, StatusSuccess, resp.Status())

	req := Frame{Type: MsgRotate}
	assert.False(t, req.IsResponse())
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "SUCCESS", StatusSuccess.String())
	assert.Equal(t, "GENERAL_FAILURE", StatusGeneralFailure.String())
	assert.Equal(t, "TIMEOUT", StatusTimeout.String())
	assert.Equal(t, "STATUS_9", Status(9).String())
}
