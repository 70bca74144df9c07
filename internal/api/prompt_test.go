// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptHubAnswer(t *testing.T) {
	hub := NewPromptHub()

	result := make(chan bool, 1)
	go func() {
		ok, err := hub.Prompt(context.Background(), "sess-1", "Check LED is green")
		require.NoError(t, err)
		result <- ok
	}()

	require.Eventually(t, func() bool {
		_, ok := hub.Pending("sess-1")
		return ok
	}, time.Second, 5*time.Millisecond)

	text, ok := hub.Pending("sess-1")
	require.True(t, ok)
	assert.Equal(t, "Check LED is green", text)

	require.True(t, hub.Answer("sess-1", true))
	assert.True(t, <-result)

	// Nothing pending anymore.
	_, ok = hub.Pending("sess-1")
	assert.False(t, ok)
	assert.False(t, hub.Answer("sess-1", true))
}

func TestPromptHubCancelled(t *testing.T) {
	hub := NewPromptHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := hub.Prompt(ctx, "sess-1", "ignored")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPromptEndpoints(t *testing.T) {
	srv := newTestServer(t)
	hub := srv.deps.Prompts

	resp, _ := srv.request(t, http.MethodGet, "/api/v1/sessions/sess-1/prompt", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	answered := make(chan bool, 1)
	go func() {
		ok, _ := hub.Prompt(context.Background(), "sess-1", "Press fixture button")
		answered <- ok
	}()
	require.Eventually(t, func() bool {
		_, ok := hub.Pending("sess-1")
		return ok
	}, time.Second, 5*time.Millisecond)

	resp, raw := srv.request(t, http.MethodGet, "/api/v1/sessions/sess-1/prompt", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "Press fixture button")

	resp, _ = srv.request(t, http.MethodPost, "/api/v1/sessions/sess-1/prompt", `{"ok":false}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, <-answered)

	resp, _ = srv.request(t, http.MethodPost, "/api/v1/sessions/sess-1/prompt", `{"ok":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
