package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ClosedWithoutExpiry", func(t *testing.T) {
		c := Conversation{}
		assert.False(t, c.SessionOpen(now))
	})

	t.Run("RefreshOpensWindow", func(t *testing.T) {
		c := Conversation{}
		c.RefreshSession(now)

		require.NotNil(t, c.SessionStartedAt)
		require.NotNil(t, c.SessionExpiresAt)
		assert.Equal(t, now, *c.SessionStartedAt)
		assert.Equal(t, now.Add(MessagingWindow), *c.SessionExpiresAt)
		assert.True(t, c.SessionOpen(now))
		assert.True(t, c.SessionOpen(now.Add(MessagingWindow-time.Minute)))
		assert.False(t, c.SessionOpen(now.Add(MessagingWindow)))
	})

	t.Run("RefreshInsideOpenWindowKeepsStart", func(t *testing.T) {
		c := Conversation{}
		c.RefreshSession(now)

		later := now.Add(2 * time.Hour)
		c.RefreshSession(later)

		assert.Equal(t, now, *c.SessionStartedAt)
		assert.Equal(t, later.Add(MessagingWindow), *c.SessionExpiresAt)
	})

	t.Run("RefreshAfterExpiryRestartsSession", func(t *testing.T) {
		c := Conversation{}
		c.RefreshSession(now)

		later := now.Add(MessagingWindow + time.Hour)
		c.RefreshSession(later)

		assert.Equal(t, later, *c.SessionStartedAt)
		assert.Equal(t, later.Add(MessagingWindow), *c.SessionExpiresAt)
	})
}
