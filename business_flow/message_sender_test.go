package businessflow

import (
	"strings"
	"testing"
	"time"

	"github.com/chatrasa/chatrasa/app/services"
	"github.com/chatrasa/chatrasa/config"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	testingutil "github.com/chatrasa/chatrasa/testing"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupDB provisions a throwaway database, skipping when no Postgres is
// reachable through the TEST_DB_* environment.
func setupDB(t *testing.T) *testingutil.TestDB {
	t.Helper()
	testDB, err := testingutil.SetupTestDB()
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testDB.TeardownTestDB(); err != nil {
			t.Logf("failed to tear down test database: %v", err)
		}
	})
	return testDB
}

func testCipher(t *testing.T) services.CredentialCipher {
	t.Helper()
	cipher, err := services.NewCredentialCipher(&config.CryptoConfig{
		MasterKey:    "test-master-passphrase",
		KeySalt:      "test-salt",
		PBKDF2Rounds: 1000,
	})
	require.NoError(t, err)
	return cipher
}

// connectedVendor rewrites the fixture vendor's stored token with one the
// given cipher can actually decrypt.
func connectedVendor(t *testing.T, testDB *testingutil.TestDB, fixtures *testingutil.TestFixtures, cipher services.CredentialCipher) *models.Vendor {
	t.Helper()
	vendor, err := fixtures.CreateTestVendor()
	require.NoError(t, err)
	tokenEnc, err := cipher.Encrypt("real-gateway-token")
	require.NoError(t, err)
	vendor.AccessTokenEnc = tokenEnc
	require.NoError(t, testDB.DB.Save(vendor).Error)
	return vendor
}

func TestMessageSenderSends(t *testing.T) {
	testDB := setupDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	cipher := testCipher(t)
	gateway := services.NewMockGatewayClient()
	ctx := testingutil.CreateTestContext()

	messageRepo := repository.NewMessageRepository(testDB.DB)
	conversationRepo := repository.NewConversationRepository(testDB.DB)
	flowResponseRepo := repository.NewFlowResponseRepository(testDB.DB)
	sender := NewMessageSender(gateway, cipher, messageRepo, conversationRepo, flowResponseRepo, services.NewNoopEventPublisher())

	vendor := connectedVendor(t, testDB, fixtures, cipher)
	lead, err := fixtures.CreateTestLead(vendor.ID)
	require.NoError(t, err)
	conversation, err := fixtures.CreateTestConversation(vendor.ID, lead.ID)
	require.NoError(t, err)

	t.Run("SendTextPersistsOutbound", func(t *testing.T) {
		message, err := sender.SendText(ctx, vendor, conversation, lead, "hi there")
		require.NoError(t, err)
		require.NotNil(t, message)
		assert.Equal(t, models.MessageStatusSent, message.Status)
		assert.Equal(t, models.MessageDirectionOutbound, message.Direction)
		require.NotNil(t, message.ExternalID)

		stored, err := messageRepo.ByID(ctx, message.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "hi there", stored.Body)

		last := gateway.LastSend()
		require.NotNil(t, last)
		assert.Equal(t, lead.Phone, last.To)
		assert.Equal(t, "text", last.Type)
	})

	t.Run("SendFlowLaunchRecordsPendingSubmission", func(t *testing.T) {
		flow, err := fixtures.CreateTestFlow(vendor.ID, "4242424242")
		require.NoError(t, err)

		message, err := sender.SendFlowLaunch(ctx, vendor, conversation, lead, "Fill in the form", flow)
		require.NoError(t, err)
		require.NotNil(t, message)
		assert.Equal(t, models.MessageTypeFlow, message.Type)

		last := gateway.LastSend()
		require.NotNil(t, last)
		token, ok := last.Payload.(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(token, "4242424242_"))

		pending, err := flowResponseRepo.ByFlowToken(ctx, token)
		require.NoError(t, err)
		require.NotNil(t, pending)
		assert.Equal(t, models.FlowResponseStatusInProgress, pending.Status)
		require.NotNil(t, pending.LeadID)
		assert.Equal(t, lead.ID, *pending.LeadID)
	})

	t.Run("ClosedSessionWindowRefused", func(t *testing.T) {
		closed := *conversation
		expired := utils.UTCNow().Add(-time.Hour)
		closed.SessionExpiresAt = &expired

		before := gateway.SentCount()
		_, err := sender.SendText(ctx, vendor, &closed, lead, "too late")
		assert.True(t, IsSessionWindowClosed(err))
		assert.Equal(t, before, gateway.SentCount())
	})

	t.Run("DisconnectedVendorRefused", func(t *testing.T) {
		broken := *vendor
		broken.ConnectionStatus = models.VendorConnectionStatusError

		_, err := sender.SendText(ctx, vendor, conversation, lead, "")
		require.NoError(t, err) // control: the healthy vendor still sends

		_, err = sender.SendText(ctx, &broken, conversation, lead, "no creds")
		assert.True(t, IsVendorDisconnected(err))
	})
}

func TestWorkflowEngineInbound(t *testing.T) {
	testDB := setupDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	cipher := testCipher(t)
	gateway := services.NewMockGatewayClient()
	ctx := testingutil.CreateTestContext()

	messageRepo := repository.NewMessageRepository(testDB.DB)
	conversationRepo := repository.NewConversationRepository(testDB.DB)
	flowResponseRepo := repository.NewFlowResponseRepository(testDB.DB)
	workflowRepo := repository.NewWorkflowRepository(testDB.DB)
	sessionRepo := repository.NewWorkflowSessionRepository(testDB.DB)
	flowRepo := repository.NewFlowRepository(testDB.DB)
	activityRepo := repository.NewActivityLogRepository(testDB.DB)

	sender := NewMessageSender(gateway, cipher, messageRepo, conversationRepo, flowResponseRepo, services.NewNoopEventPublisher())
	engine := NewWorkflowEngine(testDB.DB, workflowRepo, sessionRepo, flowRepo, activityRepo, sender, services.NewNoopEventPublisher(), time.Millisecond)

	vendor := connectedVendor(t, testDB, fixtures, cipher)
	lead, err := fixtures.CreateTestLead(vendor.ID)
	require.NoError(t, err)
	conversation, err := fixtures.CreateTestConversation(vendor.ID, lead.ID)
	require.NoError(t, err)
	_, err = fixtures.CreateTestWorkflow(vendor.ID, "hello,start")
	require.NoError(t, err)

	inbound := func(body string) *models.Message {
		msg := &models.Message{
			VendorID:       vendor.ID,
			ConversationID: conversation.ID,
			Direction:      models.MessageDirectionInbound,
			Type:           models.MessageTypeText,
			Body:           body,
			Status:         models.MessageStatusReceived,
		}
		require.NoError(t, messageRepo.Save(ctx, msg))
		return msg
	}

	t.Run("KeywordTriggersWorkflow", func(t *testing.T) {
		handled, err := engine.HandleInbound(ctx, vendor, conversation, lead, inbound("  Hello "), "")
		require.NoError(t, err)
		assert.True(t, handled)

		last := gateway.LastSend()
		require.NotNil(t, last)
		assert.Equal(t, "Hello!", last.Body)
	})

	t.Run("UnmatchedTextNotHandled", func(t *testing.T) {
		handled, err := engine.HandleInbound(ctx, vendor, conversation, lead, inbound("weather report"), "")
		require.NoError(t, err)
		assert.False(t, handled)
	})
}
