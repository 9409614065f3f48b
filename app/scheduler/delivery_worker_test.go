package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/chatrasa/chatrasa/app/services"
	"github.com/chatrasa/chatrasa/config"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	testingutil "github.com/chatrasa/chatrasa/testing"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/google/uuid"
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

func seedCampaign(t *testing.T, testDB *testingutil.TestDB, vendorID uint, total int) *models.Campaign {
	t.Helper()
	campaign := &models.Campaign{
		UUID:          uuid.New(),
		VendorID:      vendorID,
		Name:          "worker test campaign",
		TemplateName:  "welcome",
		Status:        models.CampaignStatusQueued,
		TotalMessages: total,
		CreatedAt:     utils.UTCNow(),
	}
	require.NoError(t, testDB.DB.Create(campaign).Error)
	return campaign
}

func TestDeliveryWorker(t *testing.T) {
	testDB := setupDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	cipher := testCipher(t)
	ctx := testingutil.CreateTestContext()

	messageRepo := repository.NewMessageRepository(testDB.DB)
	vendorRepo := repository.NewVendorRepository(testDB.DB)
	conversationRepo := repository.NewConversationRepository(testDB.DB)
	leadRepo := repository.NewLeadRepository(testDB.DB)
	campaignRepo := repository.NewCampaignRepository(testDB.DB)

	newWorker := func(gateway services.GatewayClient) *DeliveryWorker {
		return NewDeliveryWorker(
			messageRepo, vendorRepo, conversationRepo, leadRepo, campaignRepo,
			gateway, cipher, services.NewNoopEventPublisher(),
			config.WorkerConfig{
				PollInterval:   10 * time.Millisecond,
				ClaimLease:     time.Minute,
				FailureBackoff: time.Millisecond,
				SendRate:       1000,
				SendBurst:      10,
			},
		)
	}

	seed := func(t *testing.T) (*models.Vendor, *models.Campaign, *models.Message) {
		t.Helper()
		require.NoError(t, testDB.ClearAllTables())
		vendor := connectedVendor(t, testDB, fixtures, cipher)
		lead, err := fixtures.CreateTestLead(vendor.ID)
		require.NoError(t, err)
		conversation, err := fixtures.CreateTestConversation(vendor.ID, lead.ID)
		require.NoError(t, err)
		campaign := seedCampaign(t, testDB, vendor.ID, 1)
		message, err := fixtures.CreateTestMessage(vendor.ID, conversation.ID, models.MessageStatusQueued)
		require.NoError(t, err)
		message.CampaignID = &campaign.ID
		require.NoError(t, testDB.DB.Save(message).Error)
		return vendor, campaign, message
	}

	t.Run("SuccessfulSendCommits", func(t *testing.T) {
		_, campaign, message := seed(t)
		gateway := services.NewMockGatewayClient()
		worker := newWorker(gateway)

		worker.drain(ctx)

		got, err := messageRepo.ByID(ctx, message.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusSent, got.Status)
		require.NotNil(t, got.ExternalID)
		assert.NotEmpty(t, *got.ExternalID)
		assert.Nil(t, got.ClaimedUntil)
		assert.Equal(t, 1, gateway.SentCount())

		gotCampaign, err := campaignRepo.ByID(ctx, campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, gotCampaign.SentMessages)
	})

	t.Run("FailureConsumesOneAttemptPerDrain", func(t *testing.T) {
		_, _, message := seed(t)
		gateway := services.NewMockGatewayClient()
		gateway.FailWith = errors.New("gateway unavailable")
		worker := newWorker(gateway)

		worker.drain(ctx)

		got, err := messageRepo.ByID(ctx, message.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusQueued, got.Status)
		assert.Equal(t, 1, got.RetryCount)
	})

	t.Run("RetryCeilingFinalizesFailed", func(t *testing.T) {
		_, campaign, message := seed(t)
		gateway := services.NewMockGatewayClient()
		gateway.FailWith = errors.New("gateway unavailable")
		worker := newWorker(gateway)

		for i := 0; i <= models.MaxSendRetries; i++ {
			worker.drain(ctx)
		}

		got, err := messageRepo.ByID(ctx, message.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusFailed, got.Status)
		assert.Equal(t, models.MaxSendRetries, got.RetryCount)
		require.NotNil(t, got.LastError)
		assert.Contains(t, *got.LastError, "gateway unavailable")

		gotCampaign, err := campaignRepo.ByID(ctx, campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, gotCampaign.FailedMessages)
		assert.Equal(t, 0, gotCampaign.SentMessages)

		// the exhausted message must not be offered again
		next, err := messageRepo.NextSendable(ctx, utils.UTCNow(), models.MaxSendRetries)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("CredentialRejectionFlagsVendor", func(t *testing.T) {
		vendor, _, _ := seed(t)
		gateway := services.NewMockGatewayClient()
		gateway.FailWith = &services.GatewayError{Code: 190, Type: "OAuthException", Message: "access token expired"}
		worker := newWorker(gateway)

		worker.drain(ctx)

		gotVendor, err := vendorRepo.ByID(ctx, vendor.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VendorConnectionStatusError, gotVendor.ConnectionStatus)
	})
}
