// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chassis

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
)

// Rotation directions on the wire.
const (
	dirCW   byte = 0
	dirCCW  byte = 1
	dirHome byte = 2
)

// Client drives the fixture over any byte stream (serial port in
// production, a pipe in tests). One request in flight at a time.
type Client struct {
	mu sync.Mutex
	w  io.Writer
	r  *bufio.Reader
}

// NewClient wraps an open transport.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{w: rw, r: bufio.NewReader(rw)}
}

// roundTrip sends a request and reads the matching response frame.
func (c *Client) roundTrip(ctx context.Context, req Frame) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if err := WriteFrame(c.w, req); err != nil {
		return Frame{}, fmt.Errorf("chassis: write type %04x: %w", req.Type, err)
	}
	resp, err := ReadFrame(c.r)
	if err != nil {
		return Frame{}, err
	}
	if !resp.IsResponse() || resp.RequestType() != req.Type {
		return Frame{}, fmt.Errorf("chassis: unexpected response type %04x to request %04x", resp.Type, req.Type)
	}
	return resp, nil
}

// angle values travel as tenths of a degree.
func angleToWire(deg float64) uint16 { return uint16(math.Round(deg * 10)) }
func angleFromWire(v uint16) float64 { return float64(v) / 10 }

// Rotate turns the turntable. direction is "cw"/"rotate_right" or
// "ccw"/"rotate_left". Returns the fixture status string.
func (c *Client) Rotate(ctx context.Context, direction string, angleDeg float64) (string, error) {
	var dir byte
	switch strings.ToLower(direction) {
	case "cw", "rotate_right", "right":
		dir = dirCW
	case "ccw", "rotate_left", "left":
		dir = dirCCW
	default:
		return "", fmt.Errorf("chassis: unknown direction %q", direction)
	}

	body := make([]byte, 0, 3)
	body = append(body, dir)
	body = binary.BigEndian.AppendUint16(body, angleToWire(angleDeg))

	resp, err := c.roundTrip(ctx, Frame{Type: MsgRotate, Body: body})
	if err != nil {
		return "", err
	}
	return resp.Status().String(), nil
}

// Home drives the turntable to its reference position.
func (c *Client) Home(ctx context.Context) (string, error) {
	body := []byte{dirHome, 0, 0}
	resp, err := c.roundTrip(ctx, Frame{Type: MsgRotate, Body: body})
	if err != nil {
		return "", err
	}
	return resp.Status().String(), nil
}

// Angle reads the current turntable angle in degrees.
func (c *Client) Angle(ctx context.Context) (float64, error) {
	resp, err := c.roundTrip(ctx, Frame{Type: MsgAngle})
	if err != nil {
		return 0, err
	}
	if st := resp.Status(); st != StatusSuccess {
		return 0, fmt.Errorf("chassis: get angle: %s", st)
	}
	if len(resp.Body) < 3 {
		return 0, fmt.Errorf("chassis: short angle response (%d bytes)", len(resp.Body))
	}
	return angleFromWire(binary.BigEndian.Uint16(resp.Body[1:3])), nil
}

// WaitForTurntable blocks on the fixture until motion completes.
// timeoutDS is the fixture-side timeout in deciseconds.
func (c *Client) WaitForTurntable(ctx context.Context, timeoutDS uint16) (string, error) {
	body := binary.BigEndian.AppendUint16(nil, timeoutDS)
	resp, err := c.roundTrip(ctx, Frame{Type: MsgWait, Body: body})
	if err != nil {
		return "", err
	}
	return resp.Status().String(), nil
}

// Door actuates the cliff-sensor door.
func (c *Client) Door(ctx context.Context, open bool) (string, error) {
	var b byte
	if open {
		b = 1
	}
	resp, err := c.roundTrip(ctx, Frame{Type: MsgDoor, Body: []byte{b}})
	if err != nil {
		return "", err
	}
	return resp.Status().String(), nil
}

// Encoder reads the raw encoder count.
func (c *Client) Encoder(ctx context.Context) (uint32, error) {
	resp, err := c.roundTrip(ctx, Frame{Type: MsgEncoder})
	if err != nil {
		return 0, err
	}
	if st := resp.Status(); st != StatusSuccess {
		return 0, fmt.Errorf("chassis: read encoder: %s", st)
	}
	if len(resp.Body) < 5 {
		return 0, fmt.Errorf("chassis: short encoder response (%d bytes)", len(resp.Body))
	}
	return binary.BigEndian.Uint32(resp.Body[1:5]), nil
}
