// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/webpdtool/internal/domain/session/model"
)

func snap(sessionID string, executed int) model.Snapshot {
	return model.Snapshot{SessionID: sessionID, Status: model.StatusRunning, ExecutedCount: executed, Total: 10}
}

func TestLatestTracksNewestPublish(t *testing.T) {
	b := NewProgressBus()

	_, ok := b.Latest("sess-1")
	assert.False(t, ok)

	b.Publish(snap("sess-1", 1))
	b.Publish(snap("sess-1", 2))

	got, ok := b.Latest("sess-1")
	require.True(t, ok)
	assert.Equal(t, 2, got.ExecutedCount)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	b := NewProgressBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(snap("sess-1", 1))
	got := <-ch
	assert.Equal(t, "sess-1", got.SessionID)
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewProgressBus()
	_, cancel := b.Subscribe() // never drained
	defer cancel()

	// More publishes than the subscriber buffer: must not deadlock.
	for i := 0; i < 200; i++ {
		b.Publish(snap("sess-1", i))
	}

	got, ok := b.Latest("sess-1")
	require.True(t, ok)
	assert.Equal(t, 199, got.ExecutedCount)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewProgressBus()
	ch, cancel := b.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe reaches nobody but still works.
	b.Publish(snap("sess-1", 1))
}

func TestForget(t *testing.T) {
	b := NewProgressBus()
	b.Publish(snap("sess-1", 1))
	b.Forget("sess-1")
	_, ok := b.Latest("sess-1")
	assert.False(t, ok)
}
