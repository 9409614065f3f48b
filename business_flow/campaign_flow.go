// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// CampaignFlow handles bulk template-send jobs. Creating an enqueued
// campaign writes the queued messages and delivery rows the delivery
// worker consumes.
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	ImportRecipients(ctx context.Context, file io.Reader) ([]string, error)
	ListCampaigns(ctx context.Context, vendorID uint, page, pageSize int) (*dto.ListCampaignsResponse, error)
	GetCampaign(ctx context.Context, vendorID uint, campaignUUID string) (*dto.GetCampaignResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo     repository.CampaignRepository
	messageRepo      repository.MessageRepository
	leadRepo         repository.LeadRepository
	conversationRepo repository.ConversationRepository
	activityRepo     repository.ActivityLogRepository
	db               *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	messageRepo repository.MessageRepository,
	leadRepo repository.LeadRepository,
	conversationRepo repository.ConversationRepository,
	activityRepo repository.ActivityLogRepository,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo:     campaignRepo,
		messageRepo:      messageRepo,
		leadRepo:         leadRepo,
		conversationRepo: conversationRepo,
		activityRepo:     activityRepo,
		db:               db,
	}
}

// CreateCampaign creates a campaign and, when enqueueing, its full feed
// of queued messages and delivery rows in one transaction.
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	recipients := normalizeRecipients(req.Recipients)
	if req.Enqueue && len(recipients) == 0 {
		return nil, NewBusinessError("CAMPAIGN_RECIPIENTS_REQUIRED", "an enqueued campaign needs at least one recipient", ErrCampaignRecipientsRequired)
	}

	status := models.CampaignStatusDraft
	if req.Enqueue {
		status = models.CampaignStatusQueued
	}
	campaign := &models.Campaign{
		VendorID:      req.VendorID,
		Name:          req.Name,
		TemplateName:  req.TemplateName,
		Spec:          req.Spec,
		Recipients:    recipients,
		Status:        status,
		TotalMessages: len(recipients),
	}

	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.campaignRepo.Save(txCtx, campaign); err != nil {
			return err
		}
		if !req.Enqueue {
			return nil
		}
		for _, phone := range recipients {
			if err := s.enqueueRecipient(txCtx, campaign, phone); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "campaign creation failed", err)
	}

	s.logCreated(ctx, campaign, metadata)

	return &dto.CreateCampaignResponse{
		Message:       "Campaign created successfully",
		UUID:          campaign.UUID.String(),
		Status:        string(campaign.DerivedStatus()),
		TotalMessages: campaign.TotalMessages,
		CreatedAt:     campaign.CreatedAt.Format(time.RFC3339),
	}, nil
}

// enqueueRecipient writes one recipient's lead, conversation, queued
// message, and delivery row inside the creation transaction.
func (s *CampaignFlowImpl) enqueueRecipient(ctx context.Context, campaign *models.Campaign, phone string) error {
	lead := &models.Lead{VendorID: campaign.VendorID, Phone: phone}
	if err := s.leadRepo.Upsert(ctx, lead); err != nil {
		return err
	}

	conversation, err := s.conversationRepo.ByVendorAndLead(ctx, campaign.VendorID, lead.ID)
	if err != nil {
		return err
	}
	if conversation == nil {
		conversation = &models.Conversation{VendorID: campaign.VendorID, LeadID: lead.ID}
		if err := s.conversationRepo.Save(ctx, conversation); err != nil {
			return err
		}
	}

	templateName := campaign.TemplateName
	spec := campaign.Spec
	message := &models.Message{
		VendorID:       campaign.VendorID,
		ConversationID: conversation.ID,
		CampaignID:     &campaign.ID,
		Direction:      models.MessageDirectionOutbound,
		Type:           models.MessageTypeTemplate,
		Body:           campaign.Name,
		TemplateName:   &templateName,
		TemplateSpec:   &spec,
		Status:         models.MessageStatusQueued,
	}
	if err := s.messageRepo.Save(ctx, message); err != nil {
		return err
	}

	return s.messageRepo.SaveDeliveries(ctx, []*models.MessageDelivery{{
		MessageID:      message.ID,
		RecipientPhone: phone,
		Status:         models.MessageStatusQueued,
	}})
}

// ImportRecipients parses a spreadsheet upload: the phone column is the
// one headed "phone" (any case), defaulting to the first column.
func (s *CampaignFlowImpl) ImportRecipients(ctx context.Context, file io.Reader) ([]string, error) {
	book, err := excelize.OpenReader(file)
	if err != nil {
		return nil, NewBusinessError("RECIPIENT_IMPORT_FAILED", "failed to open spreadsheet", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewBusinessError("RECIPIENT_IMPORT_FAILED", "spreadsheet has no sheets", nil)
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, NewBusinessError("RECIPIENT_IMPORT_FAILED", "failed to read spreadsheet rows", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	phoneCol := 0
	start := 0
	for i, cell := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(cell), "phone") {
			phoneCol = i
			start = 1
			break
		}
	}

	var recipients []string
	for _, row := range rows[start:] {
		if phoneCol >= len(row) {
			continue
		}
		phone := utils.NormalizePhone(row[phoneCol])
		if len(phone) >= 5 {
			recipients = append(recipients, phone)
		}
	}
	return normalizeRecipients(recipients), nil
}

// ListCampaigns returns a page of the vendor's campaigns, newest first
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, vendorID uint, page, pageSize int) (*dto.ListCampaignsResponse, error) {
	if err := validatePagination(page, pageSize); err != nil {
		return nil, err
	}
	filter := models.CampaignFilter{VendorID: &vendorID}
	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "failed to count campaigns", err)
	}
	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "failed to list campaigns", err)
	}

	items := make([]dto.GetCampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, ToCampaignDTO(*c))
	}
	return &dto.ListCampaignsResponse{Items: items, Total: total}, nil
}

// GetCampaign returns one campaign, enforcing vendor ownership
func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, vendorID uint, campaignUUID string) (*dto.GetCampaignResponse, error) {
	parsed, err := uuid.Parse(campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "campaign not found", ErrCampaignNotFound)
	}
	campaign, err := s.campaignRepo.ByUUID(ctx, parsed.String())
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "failed to look up campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "campaign not found", ErrCampaignNotFound)
	}
	if campaign.VendorID != vendorID {
		return nil, NewBusinessError("CAMPAIGN_ACCESS_DENIED", "campaign belongs to another vendor", ErrCampaignAccessDenied)
	}
	resp := ToCampaignDTO(*campaign)
	return &resp, nil
}

func (s *CampaignFlowImpl) logCreated(ctx context.Context, campaign *models.Campaign, metadata *ClientMetadata) {
	meta, _ := json.Marshal(map[string]any{
		"campaign_uuid": campaign.UUID.String(),
		"total":         campaign.TotalMessages,
		"client":        metadata,
	})
	entry := &models.ActivityLog{
		VendorID:    &campaign.VendorID,
		Action:      models.ActivityActionCampaignCreated,
		Description: fmt.Sprintf("campaign %s created with %d recipients", campaign.Name, campaign.TotalMessages),
		Success:     utils.ToPtr(true),
		Metadata:    meta,
	}
	if err := s.activityRepo.Save(ctx, entry); err != nil {
		log.Printf("[CampaignFlow] failed to write creation audit log: %v", err)
	}
}

// normalizeRecipients canonicalizes and dedupes a recipient list,
// preserving first-seen order
func normalizeRecipients(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		phone := utils.NormalizePhone(r)
		if len(phone) < 5 {
			continue
		}
		if _, dup := seen[phone]; dup {
			continue
		}
		seen[phone] = struct{}{}
		out = append(out, phone)
	}
	return out
}

func validatePagination(page, pageSize int) error {
	if page < 1 {
		return NewBusinessError("INVALID_PAGE", "page must be at least 1", ErrInvalidPage)
	}
	if pageSize < 1 || pageSize > 100 {
		return NewBusinessError("INVALID_PAGE_SIZE", "page size must be between 1 and 100", ErrInvalidPageSize)
	}
	return nil
}
