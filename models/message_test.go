package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    MessageStatus
		to      MessageStatus
		allowed bool
	}{
		{MessageStatusQueued, MessageStatusProcessing, true},
		{MessageStatusQueued, MessageStatusFailed, true},
		{MessageStatusQueued, MessageStatusDelivered, false},
		{MessageStatusProcessing, MessageStatusQueued, true},
		{MessageStatusProcessing, MessageStatusSent, true},
		{MessageStatusProcessing, MessageStatusFailed, true},
		{MessageStatusProcessing, MessageStatusRead, false},
		{MessageStatusSent, MessageStatusDelivered, true},
		{MessageStatusSent, MessageStatusRead, true},
		{MessageStatusSent, MessageStatusFailed, true},
		{MessageStatusSent, MessageStatusQueued, false},
		{MessageStatusDelivered, MessageStatusRead, true},
		{MessageStatusDelivered, MessageStatusFailed, true},
		{MessageStatusDelivered, MessageStatusSent, false},
		// Terminal states never move
		{MessageStatusRead, MessageStatusDelivered, false},
		{MessageStatusRead, MessageStatusFailed, false},
		{MessageStatusFailed, MessageStatusSent, false},
		{MessageStatusReceived, MessageStatusRead, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestMessageStatusValid(t *testing.T) {
	for _, s := range []MessageStatus{
		MessageStatusQueued, MessageStatusProcessing, MessageStatusSent,
		MessageStatusDelivered, MessageStatusRead, MessageStatusFailed,
		MessageStatusReceived,
	} {
		assert.True(t, s.Valid(), "%s", s)
	}
	assert.False(t, MessageStatus("teleported").Valid())
}
