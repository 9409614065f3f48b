package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCampaignDerivedStatus(t *testing.T) {
	cases := []struct {
		name     string
		total    int
		sent     int
		failed   int
		expected CampaignStatus
	}{
		{"NoMessages", 0, 0, 0, CampaignStatusDraft},
		{"QueuedNothingProcessed", 10, 0, 0, CampaignStatusQueued},
		{"PartiallyProcessed", 10, 3, 1, CampaignStatusRunning},
		{"AllSent", 10, 10, 0, CampaignStatusCompleted},
		{"AllFailed", 10, 0, 10, CampaignStatusCompleted},
		{"MixedComplete", 10, 7, 3, CampaignStatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Campaign{
				TotalMessages:  tc.total,
				SentMessages:   tc.sent,
				FailedMessages: tc.failed,
			}
			assert.Equal(t, tc.expected, c.DerivedStatus())
		})
	}
}
