package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGraph() WorkflowGraph {
	return WorkflowGraph{
		Nodes: []WorkflowNode{
			{ID: "start", Kind: NodeKindStart},
			{ID: "greet", Kind: NodeKindMessage, Body: "Hello!"},
			{ID: "menu", Kind: NodeKindButton, Body: "Pick one", Buttons: []NodeButton{
				{Kind: "reply", Label: "Pricing"},
				{Kind: "reply", Label: "Support"},
			}},
			{ID: "pricing", Kind: NodeKindMessage, Body: "Our prices"},
			{ID: "support", Kind: NodeKindMessage, Body: "Our support"},
		},
		Edges: []WorkflowEdge{
			{Source: "start", Target: "greet"},
			{Source: "greet", Target: "menu"},
			{Source: "menu", SourceHandle: "btn-0", Target: "pricing"},
			{Source: "menu", SourceHandle: "btn-1", Target: "support"},
		},
	}
}

func TestWorkflowGraphValidate(t *testing.T) {
	t.Run("ValidGraph", func(t *testing.T) {
		g := validGraph()
		require.NoError(t, g.Validate())
	})

	t.Run("EmptyGraph", func(t *testing.T) {
		g := WorkflowGraph{}
		assert.Error(t, g.Validate())
	})

	t.Run("NoStartNode", func(t *testing.T) {
		g := WorkflowGraph{
			Nodes: []WorkflowNode{{ID: "a", Kind: NodeKindMessage}},
		}
		assert.Error(t, g.Validate())
	})

	t.Run("TwoStartNodes", func(t *testing.T) {
		g := WorkflowGraph{
			Nodes: []WorkflowNode{
				{ID: "a", Kind: NodeKindStart},
				{ID: "b", Kind: NodeKindStart},
			},
		}
		assert.Error(t, g.Validate())
	})

	t.Run("DuplicateNodeID", func(t *testing.T) {
		g := WorkflowGraph{
			Nodes: []WorkflowNode{
				{ID: "start", Kind: NodeKindStart},
				{ID: "start", Kind: NodeKindMessage},
			},
		}
		assert.Error(t, g.Validate())
	})

	t.Run("UnknownNodeKind", func(t *testing.T) {
		g := WorkflowGraph{
			Nodes: []WorkflowNode{
				{ID: "start", Kind: NodeKindStart},
				{ID: "x", Kind: NodeKind("teleport")},
			},
		}
		assert.Error(t, g.Validate())
	})

	t.Run("EdgeWithMissingSource", func(t *testing.T) {
		g := validGraph()
		g.Edges = append(g.Edges, WorkflowEdge{Source: "ghost", Target: "greet"})
		assert.Error(t, g.Validate())
	})

	t.Run("EdgeWithMissingTarget", func(t *testing.T) {
		g := validGraph()
		g.Edges = append(g.Edges, WorkflowEdge{Source: "greet", Target: "ghost"})
		assert.Error(t, g.Validate())
	})
}

func TestWorkflowGraphTraversal(t *testing.T) {
	g := validGraph()

	t.Run("StartNode", func(t *testing.T) {
		start := g.StartNode()
		require.NotNil(t, start)
		assert.Equal(t, "start", start.ID)
	})

	t.Run("Node", func(t *testing.T) {
		assert.NotNil(t, g.Node("menu"))
		assert.Nil(t, g.Node("ghost"))
	})

	t.Run("FirstEdgeFrom", func(t *testing.T) {
		edge := g.FirstEdgeFrom("start")
		require.NotNil(t, edge)
		assert.Equal(t, "greet", edge.Target)
		assert.Nil(t, g.FirstEdgeFrom("pricing"))
	})

	t.Run("EdgeFromHandle", func(t *testing.T) {
		edge := g.EdgeFromHandle("menu", "btn-1")
		require.NotNil(t, edge)
		assert.Equal(t, "support", edge.Target)
	})

	t.Run("EdgeFromHandleFallsBackToHandleless", func(t *testing.T) {
		g := validGraph()
		g.Edges = append(g.Edges, WorkflowEdge{Source: "menu", Target: "greet"})
		edge := g.EdgeFromHandle("menu", "btn-99")
		require.NotNil(t, edge)
		assert.Equal(t, "greet", edge.Target)
	})

	t.Run("EdgeFromHandleNoMatch", func(t *testing.T) {
		assert.Nil(t, g.EdgeFromHandle("menu", "btn-99"))
	})
}

func TestWorkflowMatchesKeyword(t *testing.T) {
	w := Workflow{TriggerKeywords: "hello, Pricing ,START"}

	assert.True(t, w.MatchesKeyword("hello"))
	assert.True(t, w.MatchesKeyword("pricing"))
	assert.True(t, w.MatchesKeyword("start"))
	assert.False(t, w.MatchesKeyword("hell"))
	assert.False(t, w.MatchesKeyword("hello pricing"))
	assert.False(t, w.MatchesKeyword(""))
}
