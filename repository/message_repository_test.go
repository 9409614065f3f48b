package repository_test

import (
	"context"
	"testing"
	"time"

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

func seedTemplateMessage(ctx context.Context, t *testing.T, repo repository.MessageRepository, vendorID, conversationID uint, status models.MessageStatus) *models.Message {
	t.Helper()
	templateName := "promo_template"
	message := &models.Message{
		VendorID:       vendorID,
		ConversationID: conversationID,
		Direction:      models.MessageDirectionOutbound,
		Type:           models.MessageTypeTemplate,
		Body:           "promo",
		TemplateName:   &templateName,
		Status:         status,
	}
	require.NoError(t, repo.Save(ctx, message))
	return message
}

func TestMessageRepositoryDeliveryLifecycle(t *testing.T) {
	testDB := setupDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := repository.NewMessageRepository(testDB.DB)
	ctx := testingutil.CreateTestContext()

	vendor, err := fixtures.CreateTestVendor()
	require.NoError(t, err)
	lead, err := fixtures.CreateTestLead(vendor.ID)
	require.NoError(t, err)
	conversation, err := fixtures.CreateTestConversation(vendor.ID, lead.ID)
	require.NoError(t, err)

	t.Run("NextSendablePicksOldestQueued", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		vendor, _ = fixtures.CreateTestVendor()
		lead, _ = fixtures.CreateTestLead(vendor.ID)
		conversation, _ = fixtures.CreateTestConversation(vendor.ID, lead.ID)

		first := seedTemplateMessage(ctx, t, repo, vendor.ID, conversation.ID, models.MessageStatusQueued)
		seedTemplateMessage(ctx, t, repo, vendor.ID, conversation.ID, models.MessageStatusQueued)

		next, err := repo.NextSendable(ctx, utils.UTCNow(), models.MaxSendRetries)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, first.ID, next.ID)
	})

	t.Run("NextSendableSkipsExhaustedRetries", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		vendor, _ = fixtures.CreateTestVendor()
		lead, _ = fixtures.CreateTestLead(vendor.ID)
		conversation, _ = fixtures.CreateTestConversation(vendor.ID, lead.ID)

		message := seedTemplateMessage(ctx, t, repo, vendor.ID, conversation.ID, models.MessageStatusQueued)
		message.RetryCount = models.MaxSendRetries + 1
		require.NoError(t, repo.Update(ctx, message))

		next, err := repo.NextSendable(ctx, utils.UTCNow(), models.MaxSendRetries)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("ClaimIsExclusive", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		vendor, _ = fixtures.CreateTestVendor()
		lead, _ = fixtures.CreateTestLead(vendor.ID)
		conversation, _ = fixtures.CreateTestConversation(vendor.ID, lead.ID)

		message := seedTemplateMessage(ctx, t, repo, vendor.ID, conversation.ID, models.MessageStatusQueued)
		until := utils.UTCNow().Add(time.Minute)

		claimed, err := repo.Claim(ctx, message.ID, until)
		require.NoError(t, err)
		assert.True(t, claimed)

		// Second claim under a live lease loses the race.
		claimed, err = repo.Claim(ctx, message.ID, until)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("ClaimRecoversExpiredLease", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		vendor, _ = fixtures.CreateTestVendor()
		lead, _ = fixtures.CreateTestLead(vendor.ID)
		conversation, _ = fixtures.CreateTestConversation(vendor.ID, lead.ID)

		message := seedTemplateMessage(ctx, t, repo, vendor.ID, conversation.ID, models.MessageStatusQueued)
		_, err := repo.Claim(ctx, message.ID, utils.UTCNow().Add(-time.Minute))
		require.NoError(t, err)

		claimed, err := repo.Claim(ctx, message.ID, utils.UTCNow().Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("ReleaseClearsLease", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		vendor, _ = fixtures.CreateTestVendor()
		lead, _ = fixtures.CreateTestLead(vendor.ID)
		conversation, _ = fixtures.CreateTestConversation(vendor.ID, lead.ID)

		message := seedTemplateMessage(ctx, t, repo, vendor.ID, conversation.ID, models.MessageStatusQueued)
		claimed, err := repo.Claim(ctx, message.ID, utils.UTCNow().Add(time.Minute))
		require.NoError(t, err)
		require.True(t, claimed)

		externalID := "wamid.test.123"
		require.NoError(t, repo.Release(ctx, message.ID, models.MessageStatusSent, 1, &externalID, nil))

		stored, err := repo.ByID(ctx, message.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, models.MessageStatusSent, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Nil(t, stored.ClaimedUntil)
		require.NotNil(t, stored.ExternalID)
		assert.Equal(t, externalID, *stored.ExternalID)
		assert.NotNil(t, stored.SentAt)
	})

	t.Run("UpdateStatusMonotonic", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		vendor, _ = fixtures.CreateTestVendor()
		lead, _ = fixtures.CreateTestLead(vendor.ID)
		conversation, _ = fixtures.CreateTestConversation(vendor.ID, lead.ID)

		message := seedTemplateMessage(ctx, t, repo, vendor.ID, conversation.ID, models.MessageStatusSent)

		changed, err := repo.UpdateStatusMonotonic(ctx, message.ID, models.MessageStatusDelivered)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.UpdateStatusMonotonic(ctx, message.ID, models.MessageStatusRead)
		require.NoError(t, err)
		assert.True(t, changed)

		// A late delivery report may not regress a read message.
		changed, err = repo.UpdateStatusMonotonic(ctx, message.ID, models.MessageStatusDelivered)
		require.NoError(t, err)
		assert.False(t, changed)

		stored, err := repo.ByID(ctx, message.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusRead, stored.Status)
	})

	t.Run("ByExternalID", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		vendor, _ = fixtures.CreateTestVendor()
		lead, _ = fixtures.CreateTestLead(vendor.ID)
		conversation, _ = fixtures.CreateTestConversation(vendor.ID, lead.ID)

		message := seedTemplateMessage(ctx, t, repo, vendor.ID, conversation.ID, models.MessageStatusQueued)
		externalID := "wamid.lookup.1"
		require.NoError(t, repo.Release(ctx, message.ID, models.MessageStatusSent, 0, &externalID, nil))

		found, err := repo.ByExternalID(ctx, externalID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, message.ID, found.ID)

		missing, err := repo.ByExternalID(ctx, "wamid.unknown")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}
