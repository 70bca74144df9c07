// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package chassis implements the framed protocol of the rotating chassis
// fixture. The fixture speaks a fixed-sync binary framing over serial at
// 9600 8N1: big-endian fields, CRC16/Kermit over length, message type and
// body.
//
//	[sync: 4 bytes = 0xA5FF00CC] [length: 2] [msg_type: 2] [body: variable] [crc16: 2]
//
// length counts msg_type plus body. Responses echo the request type with
// the high bit set and carry a status byte first in the body.
package chassis

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sigurn/crc16"
)

var syncWord = [4]byte{0xA5, 0xFF, 0x00, 0xCC}

// Message types. A response is the request type with the high bit set.
const (
	MsgRotate  uint16 = 0x0001
	MsgAngle   uint16 = 0x0002
	MsgWait    uint16 = 0x0003
	MsgDoor    uint16 = 0x0004
	MsgEncoder uint16 = 0x0005

	responseBit uint16 = 0x8000
)

// Status is the fixture's result code, first body byte of every response.
type Status byte

const (
	StatusSuccess        Status = 0
	StatusGeneralFailure Status = 1
	StatusTimeout        Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusGeneralFailure:
		return "GENERAL_FAILURE"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("STATUS_%d", byte(s))
	}
}

var (
	ErrBadSync  = errors.New("chassis: bad sync word")
	ErrBadCRC   = errors.New("chassis: crc mismatch")
	ErrOversize = errors.New("chassis: frame too large")
)

// maxBody bounds decode allocations against line garbage.
const maxBody = 1024

var kermitTable = crc16.MakeTable(crc16.CRC16_KERMIT)

// Frame is one protocol message.
type Frame struct {
	Type uint16
	Body []byte
}

// IsResponse reports whether the frame carries a response type.
func (f Frame) IsResponse() bool { return f.Type&responseBit != 0 }

// RequestType strips the response bit.
func (f Frame) RequestType() uint16 { return f.Type &^ responseBit }

// Status returns the response status byte, or GENERAL_FAILURE for an
// empty body.
func (f Frame) Status() Status {
	if len(f.Body) == 0 {
		return StatusGeneralFailure
	}
	return Status(f.Body[0])
}

// Encode appends the wire form of the frame to dst.
func (f Frame) Encode(dst []byte) []byte {
	length := uint16(2 + len(f.Body))

	dst = append(dst, syncWord[:]...)
	dst = binary.BigEndian.AppendUint16(dst, length)
	dst = binary.BigEndian.AppendUint16(dst, f.Type)
	dst = append(dst, f.Body...)

	// CRC covers length, msg_type and body.
	crc := crc16.Checksum(dst[len(dst)-int(length)-2:], kermitTable)
	return binary.BigEndian.AppendUint16(dst, crc)
}

// WriteFrame encodes and writes one frame.
func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(f.Encode(nil))
	return err
}

// ReadFrame scans to the next sync word and decodes one frame. It tolerates
// line noise before the sync but fails on a bad CRC.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	if err := scanSync(r); err != nil {
		return Frame{}, err
	}

	var head [4]byte // length + msg_type
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Frame{}, fmt.Errorf("chassis: read header: %w", err)
	}
	length := binary.BigEndian.Uint16(head[0:2])
	if length < 2 || length > maxBody+2 {
		return Frame{}, fmt.Errorf("%w: length %d", ErrOversize, length)
	}

	body := make([]byte, length-2)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("chassis: read body: %w", err)
	}

	var crcBuf [2]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return Frame{}, fmt.Errorf("chassis: read crc: %w", err)
	}
	want := binary.BigEndian.Uint16(crcBuf[:])

	crc := crc16.Init(kermitTable)
	crc = crc16.Update(crc, head[:], kermitTable)
	crc = crc16.Update(crc, body, kermitTable)
	crc = crc16.Complete(crc, kermitTable)
	if crc != want {
		return Frame{}, fmt.Errorf("%w: got %04x want %04x", ErrBadCRC, crc, want)
	}

	return Frame{Type: binary.BigEndian.Uint16(head[2:4]), Body: body}, nil
}

// scanSync consumes bytes until the 4-byte sync word has been read.
func scanSync(r *bufio.Reader) error {
	matched := 0
	for matched < len(syncWord) {
		b, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("chassis: scan sync: %w", err)
		}
		switch {
		case b == syncWord[matched]:
			matched++
		case b == syncWord[0]:
			matched = 1
		default:
			matched = 0
		}
	}
	return nil
}
