// Package testing provides test utilities and database setup for testing the messaging engine
package testing

import (
	"fmt"
	"math/rand"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestVendor creates a connected vendor with random gateway identifiers
func (tf *TestFixtures) CreateTestVendor() (*models.Vendor, error) {
	suffix := rand.Intn(900000000) + 100000000

	vendor := &models.Vendor{
		UUID:              uuid.New(),
		Name:              fmt.Sprintf("Test Vendor %d", suffix),
		PhoneNumberID:     fmt.Sprintf("pn_%d", suffix),
		BusinessAccountID: fmt.Sprintf("ba_%d", suffix),
		DisplayPhone:      fmt.Sprintf("+9891%08d", suffix%100000000),
		AccessTokenEnc:    "encrypted-test-token",
		ConnectionStatus:  models.VendorConnectionStatusConnected,
		CreatedAt:         utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(vendor).Error; err != nil {
		return nil, fmt.Errorf("failed to create test vendor: %w", err)
	}
	return vendor, nil
}

// CreateTestLead creates a lead for the given vendor with a random phone
func (tf *TestFixtures) CreateTestLead(vendorID uint) (*models.Lead, error) {
	lead := &models.Lead{
		UUID:      uuid.New(),
		VendorID:  vendorID,
		Phone:     fmt.Sprintf("+9893%08d", rand.Intn(90000000)+10000000),
		Name:      "Test Lead",
		CreatedAt: utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(lead).Error; err != nil {
		return nil, fmt.Errorf("failed to create test lead: %w", err)
	}
	return lead, nil
}

// CreateTestConversation creates a conversation with an open messaging session
func (tf *TestFixtures) CreateTestConversation(vendorID, leadID uint) (*models.Conversation, error) {
	now := utils.UTCNow()
	expires := now.Add(models.MessagingWindow)

	conversation := &models.Conversation{
		UUID:             uuid.New(),
		VendorID:         vendorID,
		LeadID:           leadID,
		LastMessageAt:    &now,
		SessionStartedAt: &now,
		SessionExpiresAt: &expires,
		CreatedAt:        now,
	}

	if err := tf.DB.DB.Create(conversation).Error; err != nil {
		return nil, fmt.Errorf("failed to create test conversation: %w", err)
	}
	return conversation, nil
}

// CreateTestWorkflow creates an active workflow with a minimal text graph
func (tf *TestFixtures) CreateTestWorkflow(vendorID uint, keywords string) (*models.Workflow, error) {
	workflow := &models.Workflow{
		UUID:            uuid.New(),
		VendorID:        vendorID,
		Name:            "Test Workflow",
		TriggerKeywords: keywords,
		IsActive:        utils.ToPtr(true),
		Graph: models.WorkflowGraph{
			Nodes: []models.WorkflowNode{
				{ID: "start", Kind: models.NodeKindStart},
				{ID: "greet", Kind: models.NodeKindMessage, Body: "Hello!"},
			},
			Edges: []models.WorkflowEdge{
				{Source: "start", Target: "greet"},
			},
		},
		CreatedAt: utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(workflow).Error; err != nil {
		return nil, fmt.Errorf("failed to create test workflow: %w", err)
	}
	return workflow, nil
}

// CreateTestFlow creates a provisioned form with a two-screen graph
func (tf *TestFixtures) CreateTestFlow(vendorID uint, remoteFlowID string) (*models.Flow, error) {
	flow := &models.Flow{
		UUID:         uuid.New(),
		VendorID:     vendorID,
		RemoteFlowID: remoteFlowID,
		Name:         "Test Flow",
		Screens: models.FlowScreenGraph{
			Screens: []models.FlowScreen{
				{ID: "WELCOME"},
				{ID: "SUCCESS", Terminal: true},
			},
		},
		CreatedAt: utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(flow).Error; err != nil {
		return nil, fmt.Errorf("failed to create test flow: %w", err)
	}
	return flow, nil
}

// CreateTestMessage creates an outbound text message in the given status
func (tf *TestFixtures) CreateTestMessage(vendorID, conversationID uint, status models.MessageStatus) (*models.Message, error) {
	message := &models.Message{
		UUID:           uuid.New(),
		VendorID:       vendorID,
		ConversationID: conversationID,
		Direction:      models.MessageDirectionOutbound,
		Type:           models.MessageTypeText,
		Body:           "test message body",
		Status:         status,
		CreatedAt:      utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(message).Error; err != nil {
		return nil, fmt.Errorf("failed to create test message: %w", err)
	}
	return message, nil
}
