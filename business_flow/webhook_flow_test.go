package businessflow

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/chatrasa/chatrasa/app/services"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	testingutil "github.com/chatrasa/chatrasa/testing"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySubscription(t *testing.T) {
	flow := NewWebhookFlow("verify-secret", nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)

	assert.True(t, flow.VerifySubscription("subscribe", "verify-secret"))
	assert.False(t, flow.VerifySubscription("subscribe", "wrong-token"))
	assert.False(t, flow.VerifySubscription("unsubscribe", "verify-secret"))
	assert.False(t, flow.VerifySubscription("subscribe", ""))
}

func TestNormalizeInbound(t *testing.T) {
	t.Run("Text", func(t *testing.T) {
		body, msgType, handle := normalizeInbound(dto.WebhookMessage{
			Type: "text",
			Text: &dto.WebhookText{Body: "hello"},
		})
		assert.Equal(t, "hello", body)
		assert.Equal(t, models.MessageTypeText, msgType)
		assert.Equal(t, "", handle)
	})

	t.Run("ImageWithCaption", func(t *testing.T) {
		body, msgType, _ := normalizeInbound(dto.WebhookMessage{
			Type:  "image",
			Image: &dto.WebhookImage{ID: "media-1", Caption: "my receipt"},
		})
		assert.Equal(t, "my receipt", body)
		assert.Equal(t, models.MessageTypeImage, msgType)
	})

	t.Run("ImageWithoutCaption", func(t *testing.T) {
		body, msgType, _ := normalizeInbound(dto.WebhookMessage{
			Type:  "image",
			Image: &dto.WebhookImage{ID: "media-1"},
		})
		assert.Equal(t, "[image]", body)
		assert.Equal(t, models.MessageTypeImage, msgType)
	})

	t.Run("ButtonReplyCarriesHandle", func(t *testing.T) {
		body, msgType, handle := normalizeInbound(dto.WebhookMessage{
			Type: "interactive",
			Interactive: &dto.WebhookInteractive{
				Type:        "button_reply",
				ButtonReply: &dto.WebhookButtonReply{ID: "btn-1", Title: "Pricing"},
			},
		})
		assert.Equal(t, "Pricing", body)
		assert.Equal(t, models.MessageTypeButton, msgType)
		assert.Equal(t, "btn-1", handle)
	})

	t.Run("ListReplyCarriesHandle", func(t *testing.T) {
		body, msgType, handle := normalizeInbound(dto.WebhookMessage{
			Type: "interactive",
			Interactive: &dto.WebhookInteractive{
				Type:      "list_reply",
				ListReply: &dto.WebhookListReply{ID: "item-2", Title: "Returns"},
			},
		})
		assert.Equal(t, "Returns", body)
		assert.Equal(t, models.MessageTypeList, msgType)
		assert.Equal(t, "item-2", handle)
	})

	t.Run("FormSubmission", func(t *testing.T) {
		body, msgType, handle := normalizeInbound(dto.WebhookMessage{
			Type: "interactive",
			Interactive: &dto.WebhookInteractive{
				Type:     "nfm_reply",
				NFMReply: &dto.WebhookNFMReply{Name: "flow", ResponseJSON: `{"ok":true}`},
			},
		})
		assert.Equal(t, "[flow]", body)
		assert.Equal(t, models.MessageTypeFlow, msgType)
		assert.Equal(t, "", handle)
	})

	t.Run("TemplateQuickReply", func(t *testing.T) {
		body, msgType, _ := normalizeInbound(dto.WebhookMessage{
			Type:   "button",
			Button: &dto.WebhookButton{Text: "Yes please", Payload: "CONFIRM"},
		})
		assert.Equal(t, "Yes please", body)
		assert.Equal(t, models.MessageTypeButton, msgType)
	})

	t.Run("DocumentWithCaption", func(t *testing.T) {
		body, msgType, _ := normalizeInbound(dto.WebhookMessage{
			Type:     "document",
			Document: &dto.WebhookMedia{ID: "media-3", Filename: "invoice.pdf", Caption: "March invoice"},
		})
		assert.Equal(t, "March invoice", body)
		assert.Equal(t, models.MessageTypeDocument, msgType)
	})

	t.Run("AudioPlaceholder", func(t *testing.T) {
		body, msgType, _ := normalizeInbound(dto.WebhookMessage{
			Type:  "audio",
			Audio: &dto.WebhookMedia{ID: "media-4"},
		})
		assert.Equal(t, "[audio]", body)
		assert.Equal(t, models.MessageTypeAudio, msgType)
	})

	t.Run("VideoWithoutCaption", func(t *testing.T) {
		body, msgType, _ := normalizeInbound(dto.WebhookMessage{
			Type:  "video",
			Video: &dto.WebhookMedia{ID: "media-5"},
		})
		assert.Equal(t, "[video]", body)
		assert.Equal(t, models.MessageTypeVideo, msgType)
	})

	t.Run("UnknownTypePlaceholder", func(t *testing.T) {
		body, msgType, _ := normalizeInbound(dto.WebhookMessage{Type: "sticker"})
		assert.Equal(t, "[sticker]", body)
		assert.Equal(t, models.MessageTypeText, msgType)
	})
}

func TestInboundMediaRef(t *testing.T) {
	id, caption, ok := inboundMediaRef(dto.WebhookMessage{
		Type:     "document",
		Document: &dto.WebhookMedia{ID: "media-9", Caption: "report"},
	})
	assert.True(t, ok)
	assert.Equal(t, "media-9", id)
	assert.Equal(t, "report", caption)

	id, _, ok = inboundMediaRef(dto.WebhookMessage{
		Type:  "video",
		Video: &dto.WebhookMedia{ID: "media-10"},
	})
	assert.True(t, ok)
	assert.Equal(t, "media-10", id)

	_, _, ok = inboundMediaRef(dto.WebhookMessage{Type: "text", Text: &dto.WebhookText{Body: "hi"}})
	assert.False(t, ok)
}

func TestParseGatewayTimestamp(t *testing.T) {
	t.Run("UnixSeconds", func(t *testing.T) {
		got := parseGatewayTimestamp("1700000000")
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), got)
	})

	t.Run("MalformedFallsBackToNow", func(t *testing.T) {
		before := time.Now().UTC().Add(-time.Second)
		got := parseGatewayTimestamp("not-a-number")
		assert.True(t, got.After(before))
	})

	t.Run("ZeroFallsBackToNow", func(t *testing.T) {
		before := time.Now().UTC().Add(-time.Second)
		got := parseGatewayTimestamp("0")
		assert.True(t, got.After(before))
	})
}

func TestContactNames(t *testing.T) {
	a := dto.WebhookContact{WaID: "989121234567"}
	a.Profile.Name = "Sara"
	b := dto.WebhookContact{WaID: "989350001122"}
	b.Profile.Name = "Omid"

	names := contactNames([]dto.WebhookContact{a, b})
	assert.Equal(t, "Sara", names["989121234567"])
	assert.Equal(t, "Omid", names["989350001122"])
	assert.Empty(t, contactNames(nil))
}

func inboundTextPayload(vendor *models.Vendor, from, messageID, body string, at time.Time) *dto.WebhookPayload {
	return &dto.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []dto.WebhookEntry{{
			ID: vendor.BusinessAccountID,
			Changes: []dto.WebhookChange{{
				Field: "messages",
				Value: dto.WebhookValue{
					Metadata: &dto.WebhookMetadata{PhoneNumberID: vendor.PhoneNumberID},
					Messages: []dto.WebhookMessage{{
						From:      from,
						ID:        messageID,
						Timestamp: strconv.FormatInt(at.Unix(), 10),
						Type:      "text",
						Text:      &dto.WebhookText{Body: body},
					}},
				},
			}},
		}},
	}
}

func TestWebhookDispatcher(t *testing.T) {
	testDB := setupDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	cipher := testCipher(t)
	gateway := services.NewMockGatewayClient()
	media := services.NewMockMediaStorage()
	events := services.NewMockEventPublisher()
	ctx := testingutil.CreateTestContext()

	vendorRepo := repository.NewVendorRepository(testDB.DB)
	leadRepo := repository.NewLeadRepository(testDB.DB)
	conversationRepo := repository.NewConversationRepository(testDB.DB)
	messageRepo := repository.NewMessageRepository(testDB.DB)
	activityRepo := repository.NewActivityLogRepository(testDB.DB)
	workflowRepo := repository.NewWorkflowRepository(testDB.DB)
	sessionRepo := repository.NewWorkflowSessionRepository(testDB.DB)
	flowRepo := repository.NewFlowRepository(testDB.DB)
	flowResponseRepo := repository.NewFlowResponseRepository(testDB.DB)

	sender := NewMessageSender(gateway, cipher, messageRepo, conversationRepo, flowResponseRepo, events)
	engine := NewWorkflowEngine(testDB.DB, workflowRepo, sessionRepo, flowRepo, activityRepo, sender, events, time.Millisecond)
	flow := NewWebhookFlow("verify-secret", vendorRepo, leadRepo, conversationRepo, messageRepo, activityRepo, gateway, media, sender, engine, events)

	vendor := connectedVendor(t, testDB, fixtures, cipher)

	t.Run("InboundCreatesLeadConversationMessage", func(t *testing.T) {
		at := utils.UTCNow().Truncate(time.Second)
		require.NoError(t, flow.ProcessEvent(ctx, inboundTextPayload(vendor, "989121234567", "wamid.in.1", "hi", at)))

		lead, err := leadRepo.ByVendorAndPhone(ctx, vendor.ID, "989121234567")
		require.NoError(t, err)
		require.NotNil(t, lead)

		conversation, err := conversationRepo.ByVendorAndLead(ctx, vendor.ID, lead.ID)
		require.NoError(t, err)
		require.NotNil(t, conversation)
		require.NotNil(t, conversation.SessionExpiresAt)
		assert.Equal(t, at.Add(models.MessagingWindow).Unix(), conversation.SessionExpiresAt.Unix())

		message, err := messageRepo.ByExternalID(ctx, "wamid.in.1")
		require.NoError(t, err)
		require.NotNil(t, message)
		assert.Equal(t, models.MessageDirectionInbound, message.Direction)
		assert.Equal(t, models.MessageStatusReceived, message.Status)

		assert.Len(t, events.EventsOfKind(services.EventMessageReceived), 1)
	})

	t.Run("RedeliveryIsIdempotent", func(t *testing.T) {
		at := utils.UTCNow()
		require.NoError(t, flow.ProcessEvent(ctx, inboundTextPayload(vendor, "989121234567", "wamid.in.1", "hi", at)))

		externalID := "wamid.in.1"
		count, err := messageRepo.Count(ctx, models.MessageFilter{ExternalID: &externalID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("InboundImageStoresMedia", func(t *testing.T) {
		gateway.Media["media-7"] = []byte("jpeg bytes")
		payload := inboundTextPayload(vendor, "989121234567", "wamid.in.2", "", utils.UTCNow())
		payload.Entry[0].Changes[0].Value.Messages[0] = dto.WebhookMessage{
			From:      "989121234567",
			ID:        "wamid.in.2",
			Timestamp: strconv.FormatInt(utils.UTCNow().Unix(), 10),
			Type:      "image",
			Image:     &dto.WebhookImage{ID: "media-7", MimeType: "image/jpeg", Caption: "receipt"},
		}
		require.NoError(t, flow.ProcessEvent(ctx, payload))

		require.Len(t, media.Stored, 1)
		assert.Equal(t, vendor.ID, media.Stored[0].VendorID)
		assert.Equal(t, []byte("jpeg bytes"), media.Stored[0].Data)
	})

	t.Run("StatusReportAppliedMonotonically", func(t *testing.T) {
		lead, err := fixtures.CreateTestLead(vendor.ID)
		require.NoError(t, err)
		conversation, err := fixtures.CreateTestConversation(vendor.ID, lead.ID)
		require.NoError(t, err)

		externalID := "wamid.out.9"
		outbound := &models.Message{
			VendorID:       vendor.ID,
			ConversationID: conversation.ID,
			ExternalID:     &externalID,
			Direction:      models.MessageDirectionOutbound,
			Type:           models.MessageTypeText,
			Body:           "sent earlier",
			Status:         models.MessageStatusSent,
		}
		require.NoError(t, messageRepo.Save(ctx, outbound))

		statusPayload := func(status string) *dto.WebhookPayload {
			return &dto.WebhookPayload{
				Entry: []dto.WebhookEntry{{
					ID: vendor.BusinessAccountID,
					Changes: []dto.WebhookChange{{
						Field: "messages",
						Value: dto.WebhookValue{
							Metadata: &dto.WebhookMetadata{PhoneNumberID: vendor.PhoneNumberID},
							Statuses: []dto.WebhookStatus{{
								ID:        externalID,
								Status:    status,
								Timestamp: fmt.Sprintf("%d", utils.UTCNow().Unix()),
							}},
						},
					}},
				}},
			}
		}

		require.NoError(t, flow.ProcessEvent(ctx, statusPayload("read")))
		stored, err := messageRepo.ByID(ctx, outbound.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusRead, stored.Status)

		// A late delivery report never regresses a read message.
		require.NoError(t, flow.ProcessEvent(ctx, statusPayload("delivered")))
		stored, err = messageRepo.ByID(ctx, outbound.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusRead, stored.Status)
	})

	t.Run("UnknownVendorAccepted", func(t *testing.T) {
		payload := &dto.WebhookPayload{
			Entry: []dto.WebhookEntry{{
				ID: "ba_nobody",
				Changes: []dto.WebhookChange{{
					Field: "messages",
					Value: dto.WebhookValue{
						Metadata: &dto.WebhookMetadata{PhoneNumberID: "pn_nobody"},
						Messages: []dto.WebhookMessage{{From: "989000000000", ID: "wamid.in.3", Type: "text", Text: &dto.WebhookText{Body: "hi"}}},
					},
				}},
			}},
		}
		assert.NoError(t, flow.ProcessEvent(ctx, payload))

		orphan, err := messageRepo.ByExternalID(ctx, "wamid.in.3")
		require.NoError(t, err)
		assert.Nil(t, orphan)
	})
}
