package businessflow

import (
	"strconv"
	"strings"
	"testing"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintFlowToken(t *testing.T) {
	token := MintFlowToken("1234567890", "+98 912 123 4567")

	parts := strings.Split(token, "_")
	require.Len(t, parts, 3)
	assert.Equal(t, "1234567890", parts[0])
	assert.Equal(t, "989121234567", parts[1])

	nanos, err := strconv.ParseInt(parts[2], 10, 64)
	require.NoError(t, err)
	assert.Greater(t, nanos, int64(0))

	t.Run("RoundTripsThroughParsers", func(t *testing.T) {
		assert.Equal(t, "1234567890", tokenFlowID(token))
		assert.Equal(t, "989121234567", tokenPhone(token))
	})
}

func TestFlowTokenParsers(t *testing.T) {
	assert.Equal(t, "", tokenFlowID(""))
	assert.Equal(t, "", tokenPhone(""))
	assert.Equal(t, "solo", tokenFlowID("solo"))
	assert.Equal(t, "", tokenPhone("solo"))
	assert.Equal(t, "flow", tokenFlowID("flow_989121234567_1700000000000000000"))
	assert.Equal(t, "989121234567", tokenPhone("flow_989121234567_1700000000000000000"))
}

func TestNextScreen(t *testing.T) {
	t.Run("ExplicitHintWins", func(t *testing.T) {
		payload := &dto.FlowDataPayload{
			Screen: "START",
			Data:   map[string]any{"next_screen": "DETAILS"},
		}
		assert.Equal(t, "DETAILS", nextScreen(payload))
	})

	t.Run("FixedProgression", func(t *testing.T) {
		assert.Equal(t, "Q", nextScreen(&dto.FlowDataPayload{Screen: ""}))
		assert.Equal(t, "Q", nextScreen(&dto.FlowDataPayload{Screen: "START"}))
		assert.Equal(t, "SUCCESS", nextScreen(&dto.FlowDataPayload{Screen: "Q"}))
		assert.Equal(t, "SUCCESS", nextScreen(&dto.FlowDataPayload{Screen: "ANYTHING"}))
	})
}
