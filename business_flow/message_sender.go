package businessflow

import (
	"context"
	"fmt"
	"log"

	"github.com/chatrasa/chatrasa/app/services"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/chatrasa/chatrasa/utils"
)

// MessageSender is the shared outbound send capability: the workflow
// engine uses it synchronously and the delivery worker uses the same
// gateway client for queued sends. Every send persists the outbound
// Message row and bumps the conversation's last-message timestamp.
type MessageSender interface {
	Credentials(vendor *models.Vendor) (services.GatewayCredentials, error)
	SendText(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, body string) (*models.Message, error)
	SendImage(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, imageURL, caption string) (*models.Message, error)
	SendButtons(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, body string, buttons []services.InteractiveButton) (*models.Message, error)
	SendList(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, body, header, footer string, items []models.NodeListItem) (*models.Message, error)
	SendFlowLaunch(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, body string, flow *models.Flow) (*models.Message, error)
}

// MessageSenderImpl implements MessageSender.
type MessageSenderImpl struct {
	gateway          services.GatewayClient
	credentials      services.CredentialCipher
	messageRepo      repository.MessageRepository
	conversationRepo repository.ConversationRepository
	flowResponseRepo repository.FlowResponseRepository
	events           services.EventPublisher
}

// NewMessageSender creates a new message sender instance.
func NewMessageSender(
	gateway services.GatewayClient,
	credentials services.CredentialCipher,
	messageRepo repository.MessageRepository,
	conversationRepo repository.ConversationRepository,
	flowResponseRepo repository.FlowResponseRepository,
	events services.EventPublisher,
) MessageSender {
	return &MessageSenderImpl{
		gateway:          gateway,
		credentials:      credentials,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		flowResponseRepo: flowResponseRepo,
		events:           events,
	}
}

// Credentials decrypts the vendor's stored gateway credentials. A vendor
// without a usable token cannot send and the caller must stop.
func (s *MessageSenderImpl) Credentials(vendor *models.Vendor) (services.GatewayCredentials, error) {
	if vendor == nil || !vendor.IsConnected() {
		return services.GatewayCredentials{}, NewBusinessError("VENDOR_DISCONNECTED", "vendor has no usable gateway credentials", ErrVendorDisconnected)
	}
	token, err := s.credentials.Decrypt(vendor.AccessTokenEnc)
	if err != nil {
		return services.GatewayCredentials{}, NewBusinessError("CREDENTIAL_DECRYPT_FAILED", "failed to decrypt vendor access token", err)
	}
	return services.GatewayCredentials{PhoneNumberID: vendor.PhoneNumberID, AccessToken: token}, nil
}

func (s *MessageSenderImpl) SendText(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, body string) (*models.Message, error) {
	creds, err := s.requireOpenSession(vendor, conversation)
	if err != nil {
		return nil, err
	}
	externalID, err := s.gateway.SendText(ctx, creds, lead.Phone, body)
	if err != nil {
		return nil, NewBusinessError("GATEWAY_SEND_FAILED", "failed to send text message", err)
	}
	return s.persistOutbound(ctx, vendor, conversation, models.MessageTypeText, body, externalID, nil)
}

func (s *MessageSenderImpl) SendImage(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, imageURL, caption string) (*models.Message, error) {
	creds, err := s.requireOpenSession(vendor, conversation)
	if err != nil {
		return nil, err
	}
	externalID, err := s.gateway.SendImage(ctx, creds, lead.Phone, imageURL, caption)
	if err != nil {
		return nil, NewBusinessError("GATEWAY_SEND_FAILED", "failed to send image message", err)
	}
	media := &models.MessageMedia{URL: imageURL, MimeType: "image/jpeg", Caption: caption}
	return s.persistOutbound(ctx, vendor, conversation, models.MessageTypeImage, caption, externalID, media)
}

func (s *MessageSenderImpl) SendButtons(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, body string, buttons []services.InteractiveButton) (*models.Message, error) {
	creds, err := s.requireOpenSession(vendor, conversation)
	if err != nil {
		return nil, err
	}
	externalID, err := s.gateway.SendInteractiveButtons(ctx, creds, lead.Phone, body, buttons)
	if err != nil {
		return nil, NewBusinessError("GATEWAY_SEND_FAILED", "failed to send interactive buttons", err)
	}
	return s.persistOutbound(ctx, vendor, conversation, models.MessageTypeButton, body, externalID, nil)
}

func (s *MessageSenderImpl) SendList(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, body, header, footer string, items []models.NodeListItem) (*models.Message, error) {
	creds, err := s.requireOpenSession(vendor, conversation)
	if err != nil {
		return nil, err
	}
	externalID, err := s.gateway.SendInteractiveList(ctx, creds, lead.Phone, body, header, footer, items)
	if err != nil {
		return nil, NewBusinessError("GATEWAY_SEND_FAILED", "failed to send interactive list", err)
	}
	return s.persistOutbound(ctx, vendor, conversation, models.MessageTypeList, body, externalID, nil)
}

// SendFlowLaunch mints a fresh flow token, records the pending submission,
// and sends the flow launch message. The token encodes the remote flow id
// as its first underscore-delimited segment so the exchange endpoint can
// resolve the form on INIT.
func (s *MessageSenderImpl) SendFlowLaunch(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, body string, flow *models.Flow) (*models.Message, error) {
	creds, err := s.requireOpenSession(vendor, conversation)
	if err != nil {
		return nil, err
	}

	flowToken := MintFlowToken(flow.RemoteFlowID, lead.Phone)
	response := &models.FlowResponse{
		FlowID:         flow.ID,
		FlowToken:      flowToken,
		LeadID:         &lead.ID,
		ConversationID: &conversation.ID,
		Status:         models.FlowResponseStatusInProgress,
	}
	if err := s.flowResponseRepo.Save(ctx, response); err != nil {
		return nil, NewBusinessError("FLOW_RESPONSE_CREATE_FAILED", "failed to record pending form submission", err)
	}

	firstScreen := "WELCOME"
	if screen := flow.Screens.FirstScreen(); screen != nil {
		firstScreen = screen.ID
	}

	externalID, err := s.gateway.SendFlowLaunch(ctx, creds, lead.Phone, body, flow.RemoteFlowID, flowToken, firstScreen)
	if err != nil {
		return nil, NewBusinessError("GATEWAY_SEND_FAILED", "failed to send flow launch", err)
	}
	return s.persistOutbound(ctx, vendor, conversation, models.MessageTypeFlow, body, externalID, nil)
}

// MintFlowToken builds a flow token: remote flow id, counterparty phone,
// and a nanosecond timestamp, underscore-joined.
func MintFlowToken(remoteFlowID, phone string) string {
	return fmt.Sprintf("%s_%s_%d", remoteFlowID, utils.NormalizePhone(phone), utils.UTCNowUnixNano())
}

// requireOpenSession checks the messaging window and resolves credentials.
// Free-form sends outside the 24h window are rejected by the gateway, so
// they are refused here before any side effect.
func (s *MessageSenderImpl) requireOpenSession(vendor *models.Vendor, conversation *models.Conversation) (services.GatewayCredentials, error) {
	if conversation == nil || !conversation.SessionOpen(utils.UTCNow()) {
		return services.GatewayCredentials{}, NewBusinessError("SESSION_WINDOW_CLOSED", "messaging session window is closed", ErrSessionWindowClosed)
	}
	return s.Credentials(vendor)
}

func (s *MessageSenderImpl) persistOutbound(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, msgType models.MessageType, body, externalID string, media *models.MessageMedia) (*models.Message, error) {
	now := utils.UTCNow()
	message := &models.Message{
		VendorID:       vendor.ID,
		ConversationID: conversation.ID,
		ExternalID:     &externalID,
		Direction:      models.MessageDirectionOutbound,
		Type:           msgType,
		Body:           body,
		Status:         models.MessageStatusSent,
		SentAt:         &now,
	}
	if err := s.messageRepo.Save(ctx, message); err != nil {
		return nil, NewBusinessError("MESSAGE_PERSIST_FAILED", "failed to persist outbound message", err)
	}
	if media != nil {
		media.MessageID = message.ID
		if err := s.messageRepo.SaveMedia(ctx, media); err != nil {
			log.Printf("[MessageSender] failed to persist media for message %d: %v", message.ID, err)
		} else {
			message.Media = media
		}
	}
	if err := s.conversationRepo.TouchLastMessageAt(ctx, conversation.ID, now); err != nil {
		log.Printf("[MessageSender] failed to touch conversation %d: %v", conversation.ID, err)
	}

	s.events.Publish(ctx, services.Event{
		Kind:     services.EventConversationUpdated,
		VendorID: vendor.ID,
		Payload: map[string]any{
			"conversation_uuid": conversation.UUID.String(),
			"message_uuid":      message.UUID.String(),
			"direction":         string(models.MessageDirectionOutbound),
			"type":              string(msgType),
		},
		Timestamp: now,
	})

	return message, nil
}
