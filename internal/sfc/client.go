// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sfc talks to the factory's Shop Floor Control web service, the
// MES endpoint that ingests manufacturing records. Every request and its
// response are appended to the sfc_logs audit trail.
package sfc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
	"github.com/ManuGH/webpdtool/internal/log"
	"github.com/ManuGH/webpdtool/internal/metrics"
)

// Operations accepted by the SFC handler's Operation parameter.
const (
	OpCheckRoute   = "check_route"
	OpUploadResult = "upload_result"
	OpQueryStation = "query_station"
	OpBindSN       = "bind_sn"
)

// Client is a rate-limited HTTP client for the SFC service.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logs    ports.ResultRepository
	clock   ports.Clock
}

// Config for NewClient. Logs may be nil when auditing is handled elsewhere.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RatePerS  float64
	RateBurst int
}

// NewClient builds the client. The rate limiter protects the MES from
// bursts when many stations upload at shift end.
func NewClient(cfg Config, logs ports.ResultRepository, clock ports.Clock) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerS <= 0 {
		cfg.RatePerS = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerS), cfg.RateBurst),
		logs:    logs,
		clock:   clock,
	}
}

// Invoke performs one SFC operation with the given payload and returns the
// service's status string. payload keys come straight from the test plan's
// parameter map plus engine-injected fields (serial number, station).
func (c *Client) Invoke(ctx context.Context, sessionID, operation string, payload map[string]string) (string, error) {
	path, ok := operationPaths[operation]
	if !ok {
		return "", fmt.Errorf("sfc: unknown operation %q", operation)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("sfc: rate limit wait: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("sfc: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("sfc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := c.clock.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.audit(ctx, sessionID, operation, string(body), "", err)
		metrics.SFCRequest(operation, "error")
		return "", fmt.Errorf("sfc: %s: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.audit(ctx, sessionID, operation, string(body), "", err)
		metrics.SFCRequest(operation, "error")
		return "", fmt.Errorf("sfc: %s: read response: %w", operation, err)
	}

	c.audit(ctx, sessionID, operation, string(body), string(respBody), nil)

	if resp.StatusCode != http.StatusOK {
		metrics.SFCRequest(operation, "http_error")
		return "", fmt.Errorf("sfc: %s: http %d: %s", operation, resp.StatusCode, truncate(string(respBody), 200))
	}

	status, err := parseStatus(respBody)
	if err != nil {
		metrics.SFCRequest(operation, "bad_response")
		return "", fmt.Errorf("sfc: %s: %w", operation, err)
	}
	metrics.SFCRequest(operation, "ok")

	log.WithComponent("sfc").Debug().
		Str("event", "sfc.invoked").
		Str(log.FieldSessionID, sessionID).
		Str("operation", operation).
		Str("status", status).
		Int64(log.FieldDurationMS, c.clock.Since(start).Milliseconds()).
		Msg("sfc call complete")
	return status, nil
}

var operationPaths = map[string]string{
	OpCheckRoute:   "/api/route/check",
	OpUploadResult: "/api/result/upload",
	OpQueryStation: "/api/station/query",
	OpBindSN:       "/api/sn/bind",
}

// sfcResponse is the service's envelope. status is "PASS"/"OK" style text.
type sfcResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func parseStatus(body []byte) (string, error) {
	var envelope sfcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if envelope.Status == "" {
		return "", fmt.Errorf("response without status: %s", truncate(string(body), 200))
	}
	if envelope.Message != "" {
		return envelope.Status + ": " + envelope.Message, nil
	}
	return envelope.Status, nil
}

func (c *Client) audit(ctx context.Context, sessionID, operation, request, response string, callErr error) {
	if c.logs == nil {
		return
	}
	entry := model.SFCLog{
		SessionID: sessionID,
		Operation: operation,
		Request:   request,
		Response:  response,
		Status:    "success",
		CreatedAt: c.clock.Now(),
	}
	if callErr != nil {
		entry.Status = "failure"
		entry.Response = callErr.Error()
	}
	if err := c.logs.SaveSFCLog(ctx, &entry); err != nil {
		log.WithComponent("sfc").Warn().
			Err(err).
			Str(log.FieldSessionID, sessionID).
			Msg("sfc audit write failed")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
