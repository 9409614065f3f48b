package businessflow

import (
	"context"
	"testing"

	"github.com/chatrasa/chatrasa/app/services"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchButtonLabel(t *testing.T) {
	buttons := []models.NodeButton{
		{Kind: "reply", Label: "Pricing"},
		{Kind: "reply", Label: "Talk to support"},
		{Kind: "url", Label: "Website", URL: "https://example.com"},
	}

	assert.Equal(t, "btn-0", matchButtonLabel(buttons, utils.NormalizeText("  pricing ")))
	assert.Equal(t, "btn-1", matchButtonLabel(buttons, "talk to support"))
	assert.Equal(t, "", matchButtonLabel(buttons, "website"), "url labels are body text, not choices")
	assert.Equal(t, "", matchButtonLabel(buttons, "refund"))
	assert.Equal(t, "", matchButtonLabel(nil, "pricing"))
}

// captureSender records the interactive buttons handed to SendButtons.
type captureSender struct {
	MessageSender
	body    string
	buttons []services.InteractiveButton
}

func (c *captureSender) SendButtons(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, body string, buttons []services.InteractiveButton) (*models.Message, error) {
	c.body = body
	c.buttons = buttons
	return &models.Message{}, nil
}

// A node mixing url and reply buttons must mint interactive ids from the
// full-list index, so the id carried by a tapped button_reply equals the
// handle a typed label resolves to.
func TestButtonNodeHandlesAgreeAcrossInputModes(t *testing.T) {
	node := &models.WorkflowNode{
		ID:   "choose",
		Kind: models.NodeKindButton,
		Body: "Proceed?",
		Buttons: []models.NodeButton{
			{Kind: "url", Label: "Docs", URL: "https://example.com/docs"},
			{Kind: "reply", Label: "Yes"},
			{Kind: "reply", Label: "No"},
		},
	}

	sender := &captureSender{}
	engine := &WorkflowEngineImpl{sender: sender}

	err := engine.executeButtonNode(context.Background(), &models.Vendor{}, &models.Conversation{}, &models.Lead{}, node)
	require.NoError(t, err)

	require.Len(t, sender.buttons, 2)
	assert.Equal(t, "btn-1", sender.buttons[0].ID)
	assert.Equal(t, "Yes", sender.buttons[0].Label)
	assert.Equal(t, "btn-2", sender.buttons[1].ID)

	assert.Equal(t, sender.buttons[0].ID, matchButtonLabel(node.Buttons, "yes"))
	assert.Equal(t, sender.buttons[1].ID, matchButtonLabel(node.Buttons, "no"))
	assert.Contains(t, sender.body, "https://example.com/docs")
}

func TestMatchListItem(t *testing.T) {
	items := []models.NodeListItem{
		{Title: "Order status", Description: "Track an order"},
		{Title: "Returns"},
	}

	assert.Equal(t, "item-0", matchListItem(items, "order status"))
	assert.Equal(t, "item-1", matchListItem(items, utils.NormalizeText("RETURNS")))
	assert.Equal(t, "", matchListItem(items, "order"))
	assert.Equal(t, "", matchListItem(nil, "returns"))
}
