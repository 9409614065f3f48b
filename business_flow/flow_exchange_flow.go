package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/chatrasa/chatrasa/app/services"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/chatrasa/chatrasa/utils"
)

// FlowExchangeFlow is the synchronous endpoint of the encrypted form
// channel. Unlike the webhook dispatcher it is intolerant: a request that
// cannot be decrypted fails hard, ending that one form interaction.
type FlowExchangeFlow interface {
	Exchange(ctx context.Context, req *dto.FlowExchangeRequest) (string, error)
}

// FlowExchangeFlowImpl implements FlowExchangeFlow.
type FlowExchangeFlowImpl struct {
	flowRepo         repository.FlowRepository
	flowResponseRepo repository.FlowResponseRepository
	leadRepo         repository.LeadRepository
	conversationRepo repository.ConversationRepository
	activityRepo     repository.ActivityLogRepository
	credentials      services.CredentialCipher
	flowCrypto       services.FlowCrypto
	events           services.EventPublisher
}

// NewFlowExchangeFlow creates a new flow exchange instance.
func NewFlowExchangeFlow(
	flowRepo repository.FlowRepository,
	flowResponseRepo repository.FlowResponseRepository,
	leadRepo repository.LeadRepository,
	conversationRepo repository.ConversationRepository,
	activityRepo repository.ActivityLogRepository,
	credentials services.CredentialCipher,
	flowCrypto services.FlowCrypto,
	events services.EventPublisher,
) FlowExchangeFlow {
	return &FlowExchangeFlowImpl{
		flowRepo:         flowRepo,
		flowResponseRepo: flowResponseRepo,
		leadRepo:         leadRepo,
		conversationRepo: conversationRepo,
		activityRepo:     activityRepo,
		credentials:      credentials,
		flowCrypto:       flowCrypto,
		events:           events,
	}
}

// Exchange decrypts one request, dispatches its action, and returns the
// encrypted response blob. The response IV is the bitwise complement of
// the request IV per the gateway protocol.
func (s *FlowExchangeFlowImpl) Exchange(ctx context.Context, req *dto.FlowExchangeRequest) (string, error) {
	flow, plaintext, aesKey, iv, err := s.decryptRequest(ctx, req)
	if err != nil {
		return "", err
	}

	var payload dto.FlowDataPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return "", NewBusinessError("FLOW_DECRYPT_FAILED", "decrypted request body is not valid JSON", ErrFlowDecryptionFailed)
	}

	response := s.handleAction(ctx, flow, &payload)
	if response.Version == "" {
		response.Version = payload.Version
	}
	if response.Data == nil {
		response.Data = map[string]any{}
	}

	body, err := json.Marshal(response)
	if err != nil {
		return "", NewBusinessError("FLOW_RESPONSE_FAILED", "failed to encode exchange response", err)
	}
	encrypted, err := s.flowCrypto.EncryptResponse(aesKey, iv, body)
	if err != nil {
		return "", NewBusinessError("FLOW_RESPONSE_FAILED", "failed to encrypt exchange response", err)
	}
	return encrypted, nil
}

// decryptRequest resolves the private key by attempting each provisioned
// flow's key against the wrapped AES key. The request does not identify
// the flow before decryption (the token is inside the ciphertext), and an
// RSA-OAEP unwrap with the wrong key fails immediately.
func (s *FlowExchangeFlowImpl) decryptRequest(ctx context.Context, req *dto.FlowExchangeRequest) (*models.Flow, []byte, []byte, []byte, error) {
	flows, err := s.flowRepo.ByFilter(ctx, models.FlowFilter{}, "created_at DESC", 0, 0)
	if err != nil {
		return nil, nil, nil, nil, NewBusinessError("FLOW_LOOKUP_FAILED", "failed to list provisioned flows", err)
	}

	for _, flow := range flows {
		if flow.PrivateKeyEnc == "" {
			continue
		}
		privatePEM, err := s.credentials.Decrypt(flow.PrivateKeyEnc)
		if err != nil {
			log.Printf("[FlowExchange] failed to decrypt private key of flow %s: %v", flow.RemoteFlowID, err)
			continue
		}
		plaintext, aesKey, iv, err := s.flowCrypto.DecryptRequest(privatePEM, req.EncryptedAESKey, req.EncryptedFlowData, req.InitialVector)
		if err == nil {
			return flow, plaintext, aesKey, iv, nil
		}
	}
	return nil, nil, nil, nil, NewBusinessError("FLOW_DECRYPT_FAILED", "no provisioned key decrypts the request", ErrFlowDecryptionFailed)
}

// handleAction never errors: every recognized action has a defined
// response and unknown actions get an empty payload rather than a failure
// the end user would see as a broken form.
func (s *FlowExchangeFlowImpl) handleAction(ctx context.Context, flow *models.Flow, payload *dto.FlowDataPayload) dto.FlowExchangeResponsePayload {
	switch payload.Action {
	case "ping":
		return dto.FlowExchangeResponsePayload{Data: map[string]any{"status": "active"}}
	case "INIT":
		return s.handleInit(ctx, flow, payload)
	case "data_exchange":
		return s.handleDataExchange(ctx, flow, payload)
	case "navigate":
		return dto.FlowExchangeResponsePayload{Screen: payload.Screen, Data: map[string]any{"acknowledged": true}}
	default:
		return dto.FlowExchangeResponsePayload{Data: map[string]any{}}
	}
}

// handleInit selects the start screen: the first screen of the form named
// by the token's leading segment, or WELCOME when nothing resolves.
func (s *FlowExchangeFlowImpl) handleInit(ctx context.Context, decryptedBy *models.Flow, payload *dto.FlowDataPayload) dto.FlowExchangeResponsePayload {
	screen := "WELCOME"
	flow := decryptedBy
	if remoteFlowID := tokenFlowID(payload.FlowToken); remoteFlowID != "" {
		if resolved, err := s.flowRepo.ByRemoteFlowID(ctx, remoteFlowID); err == nil && resolved != nil {
			flow = resolved
		}
	}
	if flow != nil {
		if first := flow.Screens.FirstScreen(); first != nil {
			screen = first.ID
		}
	}
	return dto.FlowExchangeResponsePayload{Screen: screen, Data: map[string]any{}}
}

// handleDataExchange merges the submitted fields into the submission
// record for the token and answers with the next screen. Only the
// terminal screen echoes the flow token back for the client's
// confirmation step.
func (s *FlowExchangeFlowImpl) handleDataExchange(ctx context.Context, flow *models.Flow, payload *dto.FlowDataPayload) dto.FlowExchangeResponsePayload {
	next := nextScreen(payload)
	terminal := flow.Screens.IsTerminal(next)

	if payload.FlowToken != "" {
		s.persistSubmission(ctx, flow, payload, terminal)
	}

	data := map[string]any{}
	if terminal {
		data["flow_token"] = payload.FlowToken
	}
	return dto.FlowExchangeResponsePayload{Screen: next, Data: data}
}

func (s *FlowExchangeFlowImpl) persistSubmission(ctx context.Context, flow *models.Flow, payload *dto.FlowDataPayload, terminal bool) {
	response, err := s.flowResponseRepo.ByFlowToken(ctx, payload.FlowToken)
	if err != nil {
		log.Printf("[FlowExchange] failed to look up submission for token %s: %v", payload.FlowToken, err)
		return
	}

	isNew := response == nil
	if isNew {
		response = &models.FlowResponse{
			FlowID:    flow.ID,
			FlowToken: payload.FlowToken,
			Status:    models.FlowResponseStatusInProgress,
		}
		s.associateLead(ctx, flow, payload.FlowToken, response)
	}

	if err := response.MergeData(payload.Data); err != nil {
		log.Printf("[FlowExchange] failed to merge submission for token %s: %v", payload.FlowToken, err)
		return
	}
	if terminal {
		response.Status = models.FlowResponseStatusCompleted
	}

	if isNew {
		err = s.flowResponseRepo.Save(ctx, response)
	} else {
		err = s.flowResponseRepo.Update(ctx, response)
	}
	if err != nil {
		log.Printf("[FlowExchange] failed to persist submission for token %s: %v", payload.FlowToken, err)
		return
	}

	if terminal {
		s.logCompleted(ctx, flow, response)
		s.events.Publish(ctx, services.Event{
			Kind:      services.EventFlowSubmitted,
			VendorID:  flow.VendorID,
			Payload:   map[string]any{"flow_token": response.FlowToken, "flow_uuid": flow.UUID.String()},
			Timestamp: utils.UTCNow(),
		})
	}
}

// associateLead resolves the counterparty from the token's phone segment,
// trying the number with and without a leading plus.
func (s *FlowExchangeFlowImpl) associateLead(ctx context.Context, flow *models.Flow, token string, response *models.FlowResponse) {
	phone := tokenPhone(token)
	if phone == "" {
		return
	}
	lead, err := s.leadRepo.ByVendorAndPhone(ctx, flow.VendorID, phone)
	if err == nil && lead == nil {
		lead, err = s.leadRepo.ByVendorAndPhone(ctx, flow.VendorID, "+"+phone)
	}
	if err != nil || lead == nil {
		return
	}
	response.LeadID = &lead.ID

	conversation, err := s.conversationRepo.ByVendorAndLead(ctx, flow.VendorID, lead.ID)
	if err == nil && conversation != nil {
		response.ConversationID = &conversation.ID
	}
}

func (s *FlowExchangeFlowImpl) logCompleted(ctx context.Context, flow *models.Flow, response *models.FlowResponse) {
	meta, _ := json.Marshal(map[string]any{"flow_token": response.FlowToken, "data": response.Data})
	entry := &models.ActivityLog{
		VendorID:    &flow.VendorID,
		Action:      models.ActivityActionFlowSubmission,
		Description: fmt.Sprintf("form %s submission completed", flow.Name),
		Success:     utils.ToPtr(true),
		Metadata:    meta,
	}
	if err := s.activityRepo.Save(ctx, entry); err != nil {
		log.Printf("[FlowExchange] failed to write submission audit log: %v", err)
	}
}

// nextScreen resolves the screen to answer with: an explicit hint in the
// submission wins, otherwise the fixed START -> Q -> SUCCESS progression.
func nextScreen(payload *dto.FlowDataPayload) string {
	if hint, ok := payload.Data["next_screen"].(string); ok && hint != "" {
		return hint
	}
	switch payload.Screen {
	case "", "START":
		return "Q"
	case "Q":
		return "SUCCESS"
	default:
		return "SUCCESS"
	}
}

// tokenFlowID extracts the remote flow id: the first underscore-delimited
// segment of a flow token.
func tokenFlowID(token string) string {
	if token == "" {
		return ""
	}
	return strings.SplitN(token, "_", 2)[0]
}

// tokenPhone extracts the counterparty phone: the second
// underscore-delimited segment of a flow token.
func tokenPhone(token string) string {
	parts := strings.Split(token, "_")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
