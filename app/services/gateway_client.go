// Package services provides external service integrations and technical concerns like gateway access and tokens
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/chatrasa/chatrasa/config"
	"github.com/chatrasa/chatrasa/models"
)

// GatewayCredentials identifies the vendor toward the messaging gateway.
// AccessToken is the decrypted bearer token.
type GatewayCredentials struct {
	PhoneNumberID string
	AccessToken   string
}

// GatewayClient sends messages through the upstream messaging gateway and
// downloads inbound media. Every send returns the gateway-issued message id.
type GatewayClient interface {
	SendText(ctx context.Context, creds GatewayCredentials, to, body string) (string, error)
	SendImage(ctx context.Context, creds GatewayCredentials, to, imageURL, caption string) (string, error)
	SendTemplate(ctx context.Context, creds GatewayCredentials, to, templateName string, spec *models.TemplateSpec) (string, error)
	SendInteractiveButtons(ctx context.Context, creds GatewayCredentials, to, body string, buttons []InteractiveButton) (string, error)
	SendInteractiveList(ctx context.Context, creds GatewayCredentials, to, body, header, footer string, items []models.NodeListItem) (string, error)
	SendFlowLaunch(ctx context.Context, creds GatewayCredentials, to, body, remoteFlowID, flowToken, firstScreen string) (string, error)
	DownloadMedia(ctx context.Context, creds GatewayCredentials, mediaID string) ([]byte, string, error)
}

// GatewayError is a structured error response from the gateway API
type GatewayError struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d (%s): %s", e.Code, e.Type, e.Message)
}

// gatewayCredentialErrorCode is the gateway's code for an expired or
// revoked access token. A send failing with it marks the vendor
// disconnected instead of burning retries.
const gatewayCredentialErrorCode = 190

// IsCredentialError reports whether the error is a credential rejection
// from the gateway
func IsCredentialError(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code == gatewayCredentialErrorCode
	}
	return false
}

// GatewayClientImpl implements GatewayClient against a Graph-style HTTP API
type GatewayClientImpl struct {
	config *config.GatewayConfig
	client *http.Client
}

// NewGatewayClient creates a new gateway client instance
func NewGatewayClient(cfg *config.GatewayConfig) GatewayClient {
	return &GatewayClientImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type gatewaySendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *GatewayError `json:"error,omitempty"`
}

type gatewayMediaResponse struct {
	URL      string        `json:"url"`
	MimeType string        `json:"mime_type"`
	Error    *GatewayError `json:"error,omitempty"`
}

// SendText sends a plain text message
func (g *GatewayClientImpl) SendText(ctx context.Context, creds GatewayCredentials, to, body string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	return g.send(ctx, creds, payload)
}

// SendImage sends an image message with an optional caption
func (g *GatewayClientImpl) SendImage(ctx context.Context, creds GatewayCredentials, to, imageURL, caption string) (string, error) {
	image := map[string]any{"link": imageURL}
	if caption != "" {
		image["caption"] = caption
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             image,
	}
	return g.send(ctx, creds, payload)
}

// SendTemplate sends a pre-approved template message composed from the
// stored spec: header media, carousel cards, body variables and buttons.
func (g *GatewayClientImpl) SendTemplate(ctx context.Context, creds GatewayCredentials, to, templateName string, spec *models.TemplateSpec) (string, error) {
	language := "en"
	if spec != nil && spec.Language != "" {
		language = spec.Language
	}

	template := map[string]any{
		"name":     templateName,
		"language": map[string]any{"code": language},
	}
	if spec != nil {
		if components := buildTemplateComponents(spec); len(components) > 0 {
			template["components"] = components
		}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          template,
	}
	return g.send(ctx, creds, payload)
}

// buildTemplateComponents assembles the component list for a template send
func buildTemplateComponents(spec *models.TemplateSpec) []map[string]any {
	var components []map[string]any

	if spec.IsCarousel {
		cards := make([]map[string]any, 0, len(spec.Cards))
		for i, card := range spec.Cards {
			cardComponents := []map[string]any{}
			if card.HeaderImageURL != "" {
				cardComponents = append(cardComponents, map[string]any{
					"type": "header",
					"parameters": []map[string]any{
						{"type": "image", "image": map[string]any{"link": card.HeaderImageURL}},
					},
				})
			}
			if len(card.BodyParams) > 0 {
				cardComponents = append(cardComponents, map[string]any{
					"type":       "body",
					"parameters": textParameters(card.BodyParams),
				})
			}
			cards = append(cards, map[string]any{
				"card_index": i,
				"components": cardComponents,
			})
		}
		components = append(components, map[string]any{
			"type":  "carousel",
			"cards": cards,
		})
		return components
	}

	switch {
	case spec.IsCatalog && spec.CatalogThumbnail != "":
		components = append(components, map[string]any{
			"type": "header",
			"parameters": []map[string]any{
				{"type": "image", "image": map[string]any{"link": spec.CatalogThumbnail}},
			},
		})
	case spec.HeaderMediaURL != "":
		components = append(components, map[string]any{
			"type": "header",
			"parameters": []map[string]any{
				{"type": "image", "image": map[string]any{"link": spec.HeaderMediaURL}},
			},
		})
	}

	if len(spec.BodyParams) > 0 {
		components = append(components, map[string]any{
			"type":       "body",
			"parameters": textParameters(spec.BodyParams),
		})
	}

	for i, btn := range spec.Buttons {
		switch btn.Type {
		case "url":
			components = append(components, map[string]any{
				"type":     "button",
				"sub_type": "url",
				"index":    i,
				"parameters": []map[string]any{
					{"type": "text", "text": btn.URL},
				},
			})
		case "quick_reply":
			payload := btn.Payload
			if payload == "" {
				payload = btn.Text
			}
			components = append(components, map[string]any{
				"type":     "button",
				"sub_type": "quick_reply",
				"index":    i,
				"parameters": []map[string]any{
					{"type": "payload", "payload": payload},
				},
			})
		case "flow":
			components = append(components, map[string]any{
				"type":     "button",
				"sub_type": "flow",
				"index":    i,
				"parameters": []map[string]any{
					{"type": "action", "action": map[string]any{"flow_token": btn.FlowID}},
				},
			})
		}
	}

	return components
}

func textParameters(values []string) []map[string]any {
	params := make([]map[string]any, 0, len(values))
	for _, v := range values {
		params = append(params, map[string]any{"type": "text", "text": v})
	}
	return params
}

// InteractiveButton is a reply button carrying the caller-assigned id
// that comes back verbatim in the button_reply webhook. The id is minted
// by the caller so it stays stable regardless of how the button list was
// partitioned before sending.
type InteractiveButton struct {
	ID    string
	Label string
}

// SendInteractiveButtons sends a reply-button message. The gateway caps
// interactive buttons at three; callers pass only reply buttons here.
func (g *GatewayClientImpl) SendInteractiveButtons(ctx context.Context, creds GatewayCredentials, to, body string, buttons []InteractiveButton) (string, error) {
	actionButtons := make([]map[string]any, 0, len(buttons))
	for i, btn := range buttons {
		if i >= 3 {
			break
		}
		actionButtons = append(actionButtons, map[string]any{
			"type": "reply",
			"reply": map[string]any{
				"id":    btn.ID,
				"title": btn.Label,
			},
		})
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]any{"text": body},
			"action": map[string]any{"buttons": actionButtons},
		},
	}
	return g.send(ctx, creds, payload)
}

// SendInteractiveList sends a list message with one section of rows
func (g *GatewayClientImpl) SendInteractiveList(ctx context.Context, creds GatewayCredentials, to, body, header, footer string, items []models.NodeListItem) (string, error) {
	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		row := map[string]any{
			"id":    fmt.Sprintf("item-%d", i),
			"title": item.Title,
		}
		if item.Description != "" {
			row["description"] = item.Description
		}
		rows = append(rows, row)
	}

	interactive := map[string]any{
		"type": "list",
		"body": map[string]any{"text": body},
		"action": map[string]any{
			"button": "Select",
			"sections": []map[string]any{
				{"rows": rows},
			},
		},
	}
	if header != "" {
		interactive["header"] = map[string]any{"type": "text", "text": header}
	}
	if footer != "" {
		interactive["footer"] = map[string]any{"text": footer}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
	return g.send(ctx, creds, payload)
}

// SendFlowLaunch sends an interactive message that opens an encrypted form
// at its first screen, carrying the session token the form posts back.
func (g *GatewayClientImpl) SendFlowLaunch(ctx context.Context, creds GatewayCredentials, to, body, remoteFlowID, flowToken, firstScreen string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "flow",
			"body": map[string]any{"text": body},
			"action": map[string]any{
				"name": "flow",
				"parameters": map[string]any{
					"flow_message_version": "3",
					"flow_id":              remoteFlowID,
					"flow_token":           flowToken,
					"flow_cta":             "Open",
					"flow_action":          "navigate",
					"flow_action_payload":  map[string]any{"screen": firstScreen},
				},
			},
		},
	}
	return g.send(ctx, creds, payload)
}

// send posts the payload to the vendor's messages endpoint
func (g *GatewayClientImpl) send(ctx context.Context, creds GatewayCredentials, payload map[string]any) (string, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", g.config.BaseURL, g.config.APIVersion, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send gateway request: %w", err)
	}
	defer resp.Body.Close()

	var result gatewaySendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if result.Error != nil {
		return "", result.Error
	}
	if len(result.Messages) == 0 {
		return "", fmt.Errorf("gateway response contains no message id (HTTP %d)", resp.StatusCode)
	}
	return result.Messages[0].ID, nil
}

// DownloadMedia resolves a media id to its temporary URL and fetches the
// bytes. Both calls carry the vendor token; the URL alone is not enough.
func (g *GatewayClientImpl) DownloadMedia(ctx context.Context, creds GatewayCredentials, mediaID string) ([]byte, string, error) {
	metaURL := fmt.Sprintf("%s/%s/%s", g.config.BaseURL, g.config.APIVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, "GET", metaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create media metadata request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch media metadata: %w", err)
	}
	defer resp.Body.Close()

	var meta gatewayMediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("failed to decode media metadata: %w", err)
	}
	if meta.Error != nil {
		return nil, "", meta.Error
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("media %s has no download URL", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, "GET", meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create media download request: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	dlResp, err := g.client.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download failed with HTTP %d", dlResp.StatusCode)
	}
	data, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media body: %w", err)
	}
	return data, meta.MimeType, nil
}

// MockGatewayClient implements GatewayClient for testing
type MockGatewayClient struct {
	mu       sync.Mutex
	seq      int
	Sent     []MockGatewaySend
	FailWith error
	Media    map[string][]byte
}

// MockGatewaySend records one mock send
type MockGatewaySend struct {
	To      string
	Type    string
	Body    string
	Payload any
}

// NewMockGatewayClient creates a new mock gateway client
func NewMockGatewayClient() *MockGatewayClient {
	return &MockGatewayClient{
		Sent:  make([]MockGatewaySend, 0),
		Media: make(map[string][]byte),
	}
}

func (m *MockGatewayClient) record(to, msgType, body string, payload any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return "", m.FailWith
	}
	m.seq++
	m.Sent = append(m.Sent, MockGatewaySend{To: to, Type: msgType, Body: body, Payload: payload})
	return fmt.Sprintf("wamid.mock.%d", m.seq), nil
}

func (m *MockGatewayClient) SendText(ctx context.Context, creds GatewayCredentials, to, body string) (string, error) {
	return m.record(to, "text", body, nil)
}

func (m *MockGatewayClient) SendImage(ctx context.Context, creds GatewayCredentials, to, imageURL, caption string) (string, error) {
	return m.record(to, "image", caption, imageURL)
}

func (m *MockGatewayClient) SendTemplate(ctx context.Context, creds GatewayCredentials, to, templateName string, spec *models.TemplateSpec) (string, error) {
	return m.record(to, "template", templateName, spec)
}

func (m *MockGatewayClient) SendInteractiveButtons(ctx context.Context, creds GatewayCredentials, to, body string, buttons []InteractiveButton) (string, error) {
	return m.record(to, "button", body, buttons)
}

func (m *MockGatewayClient) SendInteractiveList(ctx context.Context, creds GatewayCredentials, to, body, header, footer string, items []models.NodeListItem) (string, error) {
	return m.record(to, "list", body, items)
}

func (m *MockGatewayClient) SendFlowLaunch(ctx context.Context, creds GatewayCredentials, to, body, remoteFlowID, flowToken, firstScreen string) (string, error) {
	return m.record(to, "flow", body, flowToken)
}

func (m *MockGatewayClient) DownloadMedia(ctx context.Context, creds GatewayCredentials, mediaID string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, "", m.FailWith
	}
	if data, ok := m.Media[mediaID]; ok {
		return data, "image/jpeg", nil
	}
	return nil, "", fmt.Errorf("media %s not found", mediaID)
}

// SentCount returns the number of recorded sends
func (m *MockGatewayClient) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// LastSend returns the most recent recorded send, or nil
func (m *MockGatewayClient) LastSend() *MockGatewaySend {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	s := m.Sent[len(m.Sent)-1]
	return &s
}
