package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/chatrasa/chatrasa/app/services"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/chatrasa/chatrasa/utils"
)

// WebhookFlow ingests gateway events: inbound messages, delivery status
// reports, and template review results. The gateway retry-storms on any
// non-2xx, so processing failures are logged and absorbed; ProcessEvent
// only returns an error for the caller's logs, never to refuse the event.
type WebhookFlow interface {
	VerifySubscription(mode, verifyToken string) bool
	ProcessEvent(ctx context.Context, payload *dto.WebhookPayload) error
}

// WebhookFlowImpl implements WebhookFlow.
type WebhookFlowImpl struct {
	verifyToken      string
	vendorRepo       repository.VendorRepository
	leadRepo         repository.LeadRepository
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	activityRepo     repository.ActivityLogRepository
	gateway          services.GatewayClient
	media            services.MediaStorage
	sender           MessageSender
	engine           WorkflowEngine
	events           services.EventPublisher
}

// NewWebhookFlow creates a new webhook flow instance.
func NewWebhookFlow(
	verifyToken string,
	vendorRepo repository.VendorRepository,
	leadRepo repository.LeadRepository,
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	activityRepo repository.ActivityLogRepository,
	gateway services.GatewayClient,
	media services.MediaStorage,
	sender MessageSender,
	engine WorkflowEngine,
	events services.EventPublisher,
) WebhookFlow {
	return &WebhookFlowImpl{
		verifyToken:      verifyToken,
		vendorRepo:       vendorRepo,
		leadRepo:         leadRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		activityRepo:     activityRepo,
		gateway:          gateway,
		media:            media,
		sender:           sender,
		engine:           engine,
		events:           events,
	}
}

// VerifySubscription checks the gateway's subscription handshake
func (f *WebhookFlowImpl) VerifySubscription(mode, verifyToken string) bool {
	return mode == "subscribe" && verifyToken != "" && verifyToken == f.verifyToken
}

// ProcessEvent handles one webhook envelope. Each change is processed
// independently; a failure in one never stops the others.
func (f *WebhookFlowImpl) ProcessEvent(ctx context.Context, payload *dto.WebhookPayload) error {
	if payload == nil {
		return nil
	}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if err := f.processChange(ctx, entry.ID, change); err != nil {
				log.Printf("[Webhook] failed to process %s change for entry %s: %v", change.Field, entry.ID, err)
			}
		}
	}
	return nil
}

func (f *WebhookFlowImpl) processChange(ctx context.Context, businessAccountID string, change dto.WebhookChange) error {
	vendor, err := f.resolveVendor(ctx, change.Value.Metadata, businessAccountID)
	if err != nil {
		return err
	}
	if vendor == nil {
		f.logActivity(ctx, nil, nil, models.ActivityActionWebhookIgnored, fmt.Sprintf("no vendor matches entry %s", businessAccountID), false, nil)
		return nil
	}

	if change.Field == "message_template_status_update" {
		f.handleTemplateUpdate(ctx, vendor, change.Value)
		return nil
	}

	contacts := contactNames(change.Value.Contacts)
	for _, message := range change.Value.Messages {
		if err := f.handleInboundMessage(ctx, vendor, contacts, message); err != nil {
			log.Printf("[Webhook] failed to handle inbound message %s: %v", message.ID, err)
		}
	}
	for _, status := range change.Value.Statuses {
		if err := f.handleStatus(ctx, vendor, status); err != nil {
			log.Printf("[Webhook] failed to handle status for %s: %v", status.ID, err)
		}
	}
	return nil
}

// resolveVendor looks the owning vendor up by phone number id, falling
// back to the business account id the entry is addressed to.
func (f *WebhookFlowImpl) resolveVendor(ctx context.Context, metadata *dto.WebhookMetadata, businessAccountID string) (*models.Vendor, error) {
	if metadata != nil && metadata.PhoneNumberID != "" {
		vendor, err := f.vendorRepo.ByPhoneNumberID(ctx, metadata.PhoneNumberID)
		if err != nil {
			return nil, err
		}
		if vendor != nil {
			return vendor, nil
		}
	}
	if businessAccountID == "" {
		return nil, nil
	}
	return f.vendorRepo.ByBusinessAccountID(ctx, businessAccountID)
}

func (f *WebhookFlowImpl) handleInboundMessage(ctx context.Context, vendor *models.Vendor, contacts map[string]string, wm dto.WebhookMessage) error {
	inboundAt := parseGatewayTimestamp(wm.Timestamp)

	existing, err := f.messageRepo.ByExternalID(ctx, wm.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		f.logActivity(ctx, &vendor.ID, &wm.ID, models.ActivityActionMessageDuplicate, "inbound message already processed", true, nil)
		return nil
	}

	phone := utils.NormalizePhone(wm.From)
	lead := &models.Lead{VendorID: vendor.ID, Phone: phone, Name: contacts[wm.From]}
	if err := f.leadRepo.Upsert(ctx, lead); err != nil {
		return err
	}

	conversation, err := f.conversationRepo.ByVendorAndLead(ctx, vendor.ID, lead.ID)
	if err != nil {
		return err
	}
	if conversation == nil {
		conversation = &models.Conversation{VendorID: vendor.ID, LeadID: lead.ID}
	}
	conversation.RefreshSession(inboundAt)
	conversation.LastMessageAt = &inboundAt
	if conversation.ID == 0 {
		err = f.conversationRepo.Save(ctx, conversation)
	} else {
		err = f.conversationRepo.Update(ctx, conversation)
	}
	if err != nil {
		return err
	}

	body, msgType, replyHandle := normalizeInbound(wm)
	externalID := wm.ID
	message := &models.Message{
		VendorID:       vendor.ID,
		ConversationID: conversation.ID,
		ExternalID:     &externalID,
		Direction:      models.MessageDirectionInbound,
		Type:           msgType,
		Body:           body,
		Status:         models.MessageStatusReceived,
		CreatedAt:      inboundAt,
	}
	if err := f.messageRepo.Save(ctx, message); err != nil {
		return err
	}

	// Attachment persistence is best-effort: the text record above must
	// survive a gateway media outage.
	if mediaID, caption, ok := inboundMediaRef(wm); ok {
		f.persistInboundMedia(ctx, vendor, message, mediaID, caption)
	}

	f.events.Publish(ctx, services.Event{
		Kind:     services.EventMessageReceived,
		VendorID: vendor.ID,
		Payload: map[string]any{
			"conversation_uuid": conversation.UUID.String(),
			"message_uuid":      message.UUID.String(),
			"type":              string(msgType),
			"body":              body,
		},
		Timestamp: inboundAt,
	})

	if wm.Interactive != nil && wm.Interactive.NFMReply != nil {
		f.logFlowSubmission(ctx, vendor, wm.ID, wm.Interactive.NFMReply)
	}

	if _, err := f.engine.HandleInbound(ctx, vendor, conversation, lead, message, replyHandle); err != nil {
		log.Printf("[Webhook] workflow engine failed for message %s: %v", wm.ID, err)
	}

	f.logActivity(ctx, &vendor.ID, &wm.ID, models.ActivityActionMessageReceived, fmt.Sprintf("inbound %s message from %s", msgType, phone), true, nil)
	return nil
}

// inboundMediaRef returns the gateway media id and caption of the
// message's binary attachment, if it carries one.
func inboundMediaRef(wm dto.WebhookMessage) (string, string, bool) {
	switch {
	case wm.Image != nil:
		return wm.Image.ID, wm.Image.Caption, true
	case wm.Document != nil:
		return wm.Document.ID, wm.Document.Caption, true
	case wm.Audio != nil:
		return wm.Audio.ID, wm.Audio.Caption, true
	case wm.Video != nil:
		return wm.Video.ID, wm.Video.Caption, true
	}
	return "", "", false
}

func (f *WebhookFlowImpl) persistInboundMedia(ctx context.Context, vendor *models.Vendor, message *models.Message, mediaID, caption string) {
	creds, err := f.sender.Credentials(vendor)
	if err == nil {
		var data []byte
		var mimeType string
		data, mimeType, err = f.gateway.DownloadMedia(ctx, creds, mediaID)
		if err == nil {
			var url string
			url, err = f.media.Store(vendor.ID, data, mimeType)
			if err == nil {
				err = f.messageRepo.SaveMedia(ctx, &models.MessageMedia{
					MessageID: message.ID,
					URL:       url,
					MimeType:  mimeType,
					Caption:   caption,
				})
			}
		}
	}
	if err != nil {
		log.Printf("[Webhook] failed to persist media %s for message %d: %v", mediaID, message.ID, err)
		f.logActivity(ctx, &vendor.ID, message.ExternalID, models.ActivityActionMediaDownloadFailed, fmt.Sprintf("media %s could not be stored", mediaID), false, nil)
	}
}

func (f *WebhookFlowImpl) handleStatus(ctx context.Context, vendor *models.Vendor, ws dto.WebhookStatus) error {
	switch ws.Status {
	case "sent":
		// superseded by later states, logged for the audit trail only
		f.upsertStatusLog(ctx, vendor, ws, true)
		return nil
	case "delivered", "read", "failed":
	default:
		log.Printf("[Webhook] unknown status %q for message %s", ws.Status, ws.ID)
		return nil
	}

	message, err := f.messageRepo.ByExternalID(ctx, ws.ID)
	if err != nil {
		return err
	}
	if message == nil {
		f.logActivity(ctx, &vendor.ID, &ws.ID, models.ActivityActionMessageStatusOrphaned, fmt.Sprintf("status %s for unknown message", ws.Status), false, nil)
		return nil
	}

	newStatus := models.MessageStatus(ws.Status)
	applied, err := f.messageRepo.UpdateStatusMonotonic(ctx, message.ID, newStatus)
	if err != nil {
		return err
	}
	if applied {
		if err := f.messageRepo.UpdateDeliveriesStatus(ctx, message.ID, newStatus, &ws.ID); err != nil {
			log.Printf("[Webhook] failed to mirror status %s onto deliveries of message %d: %v", newStatus, message.ID, err)
		}
		f.events.Publish(ctx, services.Event{
			Kind:     services.EventMessageStatusChanged,
			VendorID: vendor.ID,
			Payload: map[string]any{
				"message_uuid": message.UUID.String(),
				"external_id":  ws.ID,
				"status":       ws.Status,
			},
			Timestamp: utils.UTCNow(),
		})
	}
	f.upsertStatusLog(ctx, vendor, ws, applied)
	return nil
}

// upsertStatusLog folds later status reports into the existing audit row
// for the same gateway message id rather than creating duplicates.
func (f *WebhookFlowImpl) upsertStatusLog(ctx context.Context, vendor *models.Vendor, ws dto.WebhookStatus, applied bool) {
	var meta json.RawMessage
	if len(ws.Errors) > 0 {
		meta, _ = json.Marshal(map[string]any{"errors": ws.Errors})
	}
	externalID := ws.ID
	entry := &models.ActivityLog{
		VendorID:          &vendor.ID,
		ExternalMessageID: &externalID,
		Action:            models.ActivityActionMessageStatusUpdated,
		Description:       fmt.Sprintf("gateway reported %s", ws.Status),
		Success:           utils.ToPtr(applied),
		Metadata:          meta,
	}
	if err := f.activityRepo.UpsertByExternalMessageID(ctx, entry); err != nil {
		log.Printf("[Webhook] failed to upsert status audit log for %s: %v", ws.ID, err)
	}
}

func (f *WebhookFlowImpl) handleTemplateUpdate(ctx context.Context, vendor *models.Vendor, value dto.WebhookValue) {
	var action string
	switch value.Event {
	case "APPROVED":
		action = models.ActivityActionTemplateStatusApproved
	case "REJECTED":
		action = models.ActivityActionTemplateStatusRejected
	default:
		action = models.ActivityActionTemplateStatusPending
	}
	f.logActivity(ctx, &vendor.ID, nil, action, fmt.Sprintf("template %s review result: %s", value.MessageTemplateName, value.Event), true, nil)
}

func (f *WebhookFlowImpl) logFlowSubmission(ctx context.Context, vendor *models.Vendor, externalID string, reply *dto.WebhookNFMReply) {
	meta, _ := json.Marshal(map[string]any{"name": reply.Name, "response": json.RawMessage(orEmptyJSON(reply.ResponseJSON))})
	f.logActivity(ctx, &vendor.ID, &externalID, models.ActivityActionFlowSubmission, "form submission completed", true, meta)
	f.events.Publish(ctx, services.Event{
		Kind:      services.EventFlowSubmitted,
		VendorID:  vendor.ID,
		Payload:   map[string]any{"external_id": externalID, "name": reply.Name},
		Timestamp: utils.UTCNow(),
	})
}

func (f *WebhookFlowImpl) logActivity(ctx context.Context, vendorID *uint, externalID *string, action, description string, success bool, meta json.RawMessage) {
	entry := &models.ActivityLog{
		VendorID:          vendorID,
		ExternalMessageID: externalID,
		Action:            action,
		Description:       description,
		Success:           utils.ToPtr(success),
		Metadata:          meta,
	}
	if err := f.activityRepo.Save(ctx, entry); err != nil {
		log.Printf("[Webhook] failed to write %s audit log: %v", action, err)
	}
}

// normalizeInbound extracts the text representation, message type, and
// interactive reply handle of one inbound message. Types with no text
// rendering get a bracketed placeholder.
func normalizeInbound(wm dto.WebhookMessage) (string, models.MessageType, string) {
	switch wm.Type {
	case "text":
		if wm.Text != nil {
			return wm.Text.Body, models.MessageTypeText, ""
		}
	case "image":
		if wm.Image != nil && wm.Image.Caption != "" {
			return wm.Image.Caption, models.MessageTypeImage, ""
		}
		return "[image]", models.MessageTypeImage, ""
	case "document":
		if wm.Document != nil && wm.Document.Caption != "" {
			return wm.Document.Caption, models.MessageTypeDocument, ""
		}
		return "[document]", models.MessageTypeDocument, ""
	case "audio":
		return "[audio]", models.MessageTypeAudio, ""
	case "video":
		if wm.Video != nil && wm.Video.Caption != "" {
			return wm.Video.Caption, models.MessageTypeVideo, ""
		}
		return "[video]", models.MessageTypeVideo, ""
	case "interactive":
		if wm.Interactive != nil {
			switch {
			case wm.Interactive.ButtonReply != nil:
				return wm.Interactive.ButtonReply.Title, models.MessageTypeButton, wm.Interactive.ButtonReply.ID
			case wm.Interactive.ListReply != nil:
				return wm.Interactive.ListReply.Title, models.MessageTypeList, wm.Interactive.ListReply.ID
			case wm.Interactive.NFMReply != nil:
				return "[flow]", models.MessageTypeFlow, ""
			}
		}
	case "button":
		if wm.Button != nil {
			return wm.Button.Text, models.MessageTypeButton, ""
		}
	}
	return fmt.Sprintf("[%s]", wm.Type), models.MessageTypeText, ""
}

// parseGatewayTimestamp parses the gateway's unix-seconds timestamp,
// falling back to now for malformed values
func parseGatewayTimestamp(ts string) time.Time {
	seconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || seconds <= 0 {
		return utils.UTCNow()
	}
	return time.Unix(seconds, 0).UTC()
}

func contactNames(contacts []dto.WebhookContact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		names[c.WaID] = c.Profile.Name
	}
	return names
}

func orEmptyJSON(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
