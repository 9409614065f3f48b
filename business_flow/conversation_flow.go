package businessflow

import (
	"context"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/google/uuid"
)

// ConversationFlow is the read model behind the inbox views: a vendor's
// conversations and the message history of one conversation. The
// session-window state is resolved against the clock at read time.
type ConversationFlow interface {
	ListConversations(ctx context.Context, vendorID uint, page, pageSize int) (*dto.ListConversationsResponse, error)
	ListMessages(ctx context.Context, vendorID uint, conversationUUID string, page, pageSize int) (*dto.ListMessagesResponse, error)
}

// ConversationFlowImpl implements ConversationFlow.
type ConversationFlowImpl struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
}

// NewConversationFlow creates a new conversation flow instance.
func NewConversationFlow(conversationRepo repository.ConversationRepository, messageRepo repository.MessageRepository) ConversationFlow {
	return &ConversationFlowImpl{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
	}
}

// ListConversations returns a page of the vendor's conversations, most
// recently active first
func (s *ConversationFlowImpl) ListConversations(ctx context.Context, vendorID uint, page, pageSize int) (*dto.ListConversationsResponse, error) {
	if err := validatePagination(page, pageSize); err != nil {
		return nil, err
	}
	filter := models.ConversationFilter{VendorID: &vendorID}
	total, err := s.conversationRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CONVERSATION_LIST_FAILED", "failed to count conversations", err)
	}
	conversations, err := s.conversationRepo.ByFilter(ctx, filter, "last_message_at DESC NULLS LAST", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("CONVERSATION_LIST_FAILED", "failed to list conversations", err)
	}

	now := utils.UTCNow()
	items := make([]dto.ConversationView, 0, len(conversations))
	for _, c := range conversations {
		view := dto.ConversationView{
			UUID:             c.UUID.String(),
			SessionOpen:      c.SessionOpen(now),
			SessionExpiresAt: c.SessionExpiresAt,
			LastMessageAt:    c.LastMessageAt,
			CreatedAt:        c.CreatedAt,
		}
		if c.Lead != nil {
			view.LeadPhone = c.Lead.Phone
			view.LeadName = c.Lead.Name
		}
		items = append(items, view)
	}
	return &dto.ListConversationsResponse{Items: items, Total: total}, nil
}

// ListMessages returns a page of one conversation's history, newest
// first, enforcing vendor ownership
func (s *ConversationFlowImpl) ListMessages(ctx context.Context, vendorID uint, conversationUUID string, page, pageSize int) (*dto.ListMessagesResponse, error) {
	if err := validatePagination(page, pageSize); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(conversationUUID)
	if err != nil {
		return nil, NewBusinessError("CONVERSATION_NOT_FOUND", "conversation not found", ErrConversationNotFound)
	}
	conversation, err := s.conversationRepo.ByUUID(ctx, parsed.String())
	if err != nil {
		return nil, NewBusinessError("CONVERSATION_LOOKUP_FAILED", "failed to look up conversation", err)
	}
	if conversation == nil || conversation.VendorID != vendorID {
		return nil, NewBusinessError("CONVERSATION_NOT_FOUND", "conversation not found", ErrConversationNotFound)
	}

	total, err := s.messageRepo.Count(ctx, models.MessageFilter{ConversationID: &conversation.ID})
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LIST_FAILED", "failed to count messages", err)
	}
	messages, err := s.messageRepo.ListByConversation(ctx, conversation.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LIST_FAILED", "failed to list messages", err)
	}

	items := make([]dto.MessageView, 0, len(messages))
	for _, m := range messages {
		items = append(items, ToMessageDTO(*m))
	}
	return &dto.ListMessagesResponse{Items: items, Total: total}, nil
}
