package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowScreenGraph(t *testing.T) {
	g := FlowScreenGraph{
		Screens: []FlowScreen{
			{ID: "WELCOME"},
			{ID: "QUESTIONS"},
			{ID: "DONE", Terminal: true},
		},
	}

	t.Run("FirstScreen", func(t *testing.T) {
		first := g.FirstScreen()
		require.NotNil(t, first)
		assert.Equal(t, "WELCOME", first.ID)

		empty := FlowScreenGraph{}
		assert.Nil(t, empty.FirstScreen())
	})

	t.Run("Screen", func(t *testing.T) {
		assert.NotNil(t, g.Screen("QUESTIONS"))
		assert.Nil(t, g.Screen("GHOST"))
	})

	t.Run("IsTerminal", func(t *testing.T) {
		assert.True(t, g.IsTerminal("DONE"))
		assert.False(t, g.IsTerminal("WELCOME"))
	})

	t.Run("SuccessScreenIsTerminalWithoutDefinition", func(t *testing.T) {
		empty := FlowScreenGraph{}
		assert.True(t, empty.IsTerminal("SUCCESS"))
		assert.False(t, empty.IsTerminal("WELCOME"))
	})
}

func TestFlowResponseMergeData(t *testing.T) {
	t.Run("MergeIntoEmpty", func(t *testing.T) {
		r := FlowResponse{}
		require.NoError(t, r.MergeData(map[string]any{"name": "Ada"}))

		var data map[string]any
		require.NoError(t, json.Unmarshal(r.Data, &data))
		assert.Equal(t, "Ada", data["name"])
	})

	t.Run("MergeKeepsEarlierFields", func(t *testing.T) {
		r := FlowResponse{Data: json.RawMessage(`{"name":"Ada","city":"Tehran"}`)}
		require.NoError(t, r.MergeData(map[string]any{"email": "ada@example.com", "city": "Shiraz"}))

		var data map[string]any
		require.NoError(t, json.Unmarshal(r.Data, &data))
		assert.Equal(t, "Ada", data["name"])
		assert.Equal(t, "Shiraz", data["city"])
		assert.Equal(t, "ada@example.com", data["email"])
	})

	t.Run("CorruptStoredData", func(t *testing.T) {
		r := FlowResponse{Data: json.RawMessage(`{broken`)}
		assert.Error(t, r.MergeData(map[string]any{"x": 1}))
	})
}
