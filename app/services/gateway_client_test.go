package services

import (
	"testing"

	"github.com/chatrasa/chatrasa/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTemplateComponentsButtons(t *testing.T) {
	spec := &models.TemplateSpec{
		BodyParams: []string{"Dana"},
		Buttons: []models.TemplateButtonSpec{
			{Type: "url", Text: "Open", URL: "https://example.com/offer"},
			{Type: "quick_reply", Text: "Subscribe", Payload: "SUBSCRIBE"},
			{Type: "quick_reply", Text: "Stop"},
			{Type: "flow", Text: "Start", FlowID: "9001_15550001111_1"},
		},
	}

	components := buildTemplateComponents(spec)
	require.Len(t, components, 5) // body + 4 buttons

	buttons := components[1:]
	for i, comp := range buttons {
		assert.Equal(t, "button", comp["type"])
		assert.Equal(t, i, comp["index"], "button index must follow the stored slice position")
	}

	assert.Equal(t, "url", buttons[0]["sub_type"])
	urlParams := buttons[0]["parameters"].([]map[string]any)
	assert.Equal(t, "https://example.com/offer", urlParams[0]["text"])

	assert.Equal(t, "quick_reply", buttons[1]["sub_type"])
	qrParams := buttons[1]["parameters"].([]map[string]any)
	assert.Equal(t, "payload", qrParams[0]["type"])
	assert.Equal(t, "SUBSCRIBE", qrParams[0]["payload"])

	// a quick reply without an explicit payload falls back to its label
	fallbackParams := buttons[2]["parameters"].([]map[string]any)
	assert.Equal(t, "Stop", fallbackParams[0]["payload"])

	assert.Equal(t, "flow", buttons[3]["sub_type"])
	flowParams := buttons[3]["parameters"].([]map[string]any)
	action := flowParams[0]["action"].(map[string]any)
	assert.Equal(t, "9001_15550001111_1", action["flow_token"])
}

func TestBuildTemplateComponentsCatalogHeaderWins(t *testing.T) {
	spec := &models.TemplateSpec{
		IsCatalog:        true,
		CatalogThumbnail: "https://example.com/thumb.jpg",
		HeaderMediaURL:   "https://example.com/header.jpg",
	}

	components := buildTemplateComponents(spec)
	require.Len(t, components, 1)
	params := components[0]["parameters"].([]map[string]any)
	image := params[0]["image"].(map[string]any)
	assert.Equal(t, "https://example.com/thumb.jpg", image["link"])
}
