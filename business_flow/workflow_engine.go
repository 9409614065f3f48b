package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/chatrasa/chatrasa/app/services"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/chatrasa/chatrasa/utils"
	"gorm.io/gorm"
)

// maxInteractiveButtons is the gateway's hard ceiling on reply buttons per
// interactive message. Configured overflow is truncated, not rejected.
const maxInteractiveButtons = 3

// WorkflowEngine is the keyword-triggered automation over conversation
// state. The webhook dispatcher hands it every inbound message; the engine
// either advances an active session, starts a new one on a keyword match,
// or reports the message as not handled.
type WorkflowEngine interface {
	HandleInbound(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, message *models.Message, replyHandle string) (bool, error)
}

// WorkflowEngineImpl implements WorkflowEngine.
type WorkflowEngineImpl struct {
	db           *gorm.DB
	workflowRepo repository.WorkflowRepository
	sessionRepo  repository.WorkflowSessionRepository
	flowRepo     repository.FlowRepository
	activityRepo repository.ActivityLogRepository
	sender       MessageSender
	events       services.EventPublisher
	sendDelay    time.Duration
}

// NewWorkflowEngine creates a new workflow engine instance.
func NewWorkflowEngine(
	db *gorm.DB,
	workflowRepo repository.WorkflowRepository,
	sessionRepo repository.WorkflowSessionRepository,
	flowRepo repository.FlowRepository,
	activityRepo repository.ActivityLogRepository,
	sender MessageSender,
	events services.EventPublisher,
	sendDelay time.Duration,
) WorkflowEngine {
	return &WorkflowEngineImpl{
		db:           db,
		workflowRepo: workflowRepo,
		sessionRepo:  sessionRepo,
		flowRepo:     flowRepo,
		activityRepo: activityRepo,
		sender:       sender,
		events:       events,
		sendDelay:    sendDelay,
	}
}

// HandleInbound routes one inbound message through the automaton. An
// active session gets first claim on the message; if its current node
// cannot consume it, the text is re-tried as a trigger keyword so users
// never get stuck inside a stale session.
func (e *WorkflowEngineImpl) HandleInbound(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, message *models.Message, replyHandle string) (bool, error) {
	normalized := utils.NormalizeText(message.Body)

	session, err := e.sessionRepo.ActiveByConversation(ctx, conversation.ID)
	if err != nil {
		return false, NewBusinessError("SESSION_LOOKUP_FAILED", "failed to look up active workflow session", err)
	}
	if session != nil {
		handled, err := e.handleResponse(ctx, vendor, conversation, lead, session, normalized, replyHandle)
		if err != nil {
			return false, err
		}
		if handled {
			return true, nil
		}
	}

	workflow, err := e.matchTrigger(ctx, vendor.ID, normalized)
	if err != nil {
		return false, err
	}
	if workflow == nil {
		return false, nil
	}
	return true, e.startSession(ctx, vendor, conversation, lead, workflow, message)
}

// matchTrigger scans each active workflow's keyword list for an exact
// normalized match. First match wins.
func (e *WorkflowEngineImpl) matchTrigger(ctx context.Context, vendorID uint, normalized string) (*models.Workflow, error) {
	if normalized == "" {
		return nil, nil
	}
	workflows, err := e.workflowRepo.ListActiveByVendor(ctx, vendorID)
	if err != nil {
		return nil, NewBusinessError("WORKFLOW_LOOKUP_FAILED", "failed to list active workflows", err)
	}
	for _, w := range workflows {
		if w.MatchesKeyword(normalized) {
			return w, nil
		}
	}
	return nil, nil
}

// startSession drops any prior active session and creates the new one
// transactionally, then executes from the start node's first target.
// Concurrent inbound messages for the same conversation can still race
// past the active-session check; the transactional drop bounds the damage
// to one surviving session.
func (e *WorkflowEngineImpl) startSession(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, workflow *models.Workflow, message *models.Message) error {
	start := workflow.Graph.StartNode()
	if start == nil {
		return NewBusinessError("WORKFLOW_INVALID_GRAPH", "workflow has no start node", ErrWorkflowInvalidGraph)
	}
	edge := workflow.Graph.FirstEdgeFrom(start.ID)
	if edge == nil {
		return nil // a lone start node has nothing to execute
	}
	first := workflow.Graph.Node(edge.Target)
	if first == nil {
		return NewBusinessError("WORKFLOW_INVALID_GRAPH", "start edge points at a missing node", ErrWorkflowInvalidGraph)
	}

	session := &models.WorkflowSession{
		ConversationID: conversation.ID,
		WorkflowID:     workflow.ID,
		CurrentNodeID:  first.ID,
		Status:         models.WorkflowSessionStatusActive,
	}
	err := repository.WithTransaction(ctx, e.db, func(txCtx context.Context) error {
		if err := e.sessionRepo.DeactivateByConversation(txCtx, conversation.ID, models.WorkflowSessionStatusDropped); err != nil {
			return err
		}
		return e.sessionRepo.Save(txCtx, session)
	})
	if err != nil {
		return NewBusinessError("SESSION_CREATE_FAILED", "failed to create workflow session", err)
	}

	e.logTriggered(ctx, vendor, workflow, message)
	e.events.Publish(ctx, services.Event{
		Kind:     services.EventWorkflowTriggered,
		VendorID: vendor.ID,
		Payload: map[string]any{
			"workflow_uuid":     workflow.UUID.String(),
			"conversation_uuid": conversation.UUID.String(),
		},
		Timestamp: utils.UTCNow(),
	})

	return e.executeFrom(ctx, vendor, conversation, lead, workflow, session, first)
}

// handleResponse advances an existing active session on a new inbound
// message. It reports handled=false only when the current node is an
// input node and the message matches none of its options, so the caller
// may re-try the text as a fresh trigger keyword.
func (e *WorkflowEngineImpl) handleResponse(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, session *models.WorkflowSession, normalized, replyHandle string) (bool, error) {
	workflow, err := e.workflowRepo.ByID(ctx, session.WorkflowID)
	if err != nil {
		return false, NewBusinessError("WORKFLOW_LOOKUP_FAILED", "failed to load session workflow", err)
	}
	if workflow == nil || !utils.IsTrue(workflow.IsActive) {
		e.closeSession(ctx, session, models.WorkflowSessionStatusDropped)
		return false, nil
	}

	node := workflow.Graph.Node(session.CurrentNodeID)
	if node == nil {
		// graph was edited while the session was live
		e.closeSession(ctx, session, models.WorkflowSessionStatusError)
		return true, nil
	}

	var edge *models.WorkflowEdge
	switch node.Kind {
	case models.NodeKindButton:
		handle := replyHandle
		if handle == "" {
			handle = matchButtonLabel(node.Buttons, normalized)
		}
		if handle == "" {
			return false, nil
		}
		edge = workflow.Graph.EdgeFromHandle(node.ID, handle)
	case models.NodeKindList:
		handle := replyHandle
		if handle == "" {
			handle = matchListItem(node.Items, normalized)
		}
		if handle == "" {
			return false, nil
		}
		edge = workflow.Graph.EdgeFromHandle(node.ID, handle)
	default:
		edge = workflow.Graph.FirstEdgeFrom(node.ID)
	}

	if edge == nil {
		e.closeSession(ctx, session, models.WorkflowSessionStatusCompleted)
		return true, nil
	}
	next := workflow.Graph.Node(edge.Target)
	if next == nil {
		e.closeSession(ctx, session, models.WorkflowSessionStatusError)
		return true, nil
	}

	return true, e.executeFrom(ctx, vendor, conversation, lead, workflow, session, next)
}

// executeFrom runs the automaton from the given node, auto-advancing
// through side-effecting nodes until it reaches an input node (button,
// list) or runs out of edges.
func (e *WorkflowEngineImpl) executeFrom(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, workflow *models.Workflow, session *models.WorkflowSession, node *models.WorkflowNode) error {
	for {
		session.CurrentNodeID = node.ID
		if err := e.sessionRepo.Update(ctx, session); err != nil {
			return NewBusinessError("SESSION_UPDATE_FAILED", "failed to advance workflow session", err)
		}

		wait, err := e.executeNode(ctx, vendor, conversation, lead, node)
		if err != nil {
			return err
		}
		if wait {
			return nil
		}

		edge := workflow.Graph.FirstEdgeFrom(node.ID)
		if edge == nil {
			e.closeSession(ctx, session, models.WorkflowSessionStatusCompleted)
			return nil
		}
		next := workflow.Graph.Node(edge.Target)
		if next == nil {
			e.closeSession(ctx, session, models.WorkflowSessionStatusError)
			return nil
		}
		node = next

		e.pace()
	}
}

// executeNode performs the node's sends. It returns wait=true when the
// node expects a counterparty response before the session may advance.
func (e *WorkflowEngineImpl) executeNode(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, node *models.WorkflowNode) (bool, error) {
	switch node.Kind {
	case models.NodeKindMessage:
		_, err := e.sender.SendText(ctx, vendor, conversation, lead, node.Body)
		return false, err

	case models.NodeKindImage:
		_, err := e.sender.SendImage(ctx, vendor, conversation, lead, node.ImageURL, node.Body)
		return false, err

	case models.NodeKindGallery:
		for i, url := range node.Images {
			if i > 0 {
				e.pace()
			}
			if _, err := e.sender.SendImage(ctx, vendor, conversation, lead, url, ""); err != nil {
				return false, err
			}
		}
		return false, nil

	case models.NodeKindButton:
		return true, e.executeButtonNode(ctx, vendor, conversation, lead, node)

	case models.NodeKindList:
		_, err := e.sender.SendList(ctx, vendor, conversation, lead, node.Body, node.Header, node.Footer, node.Items)
		return true, err

	default:
		// start and unrecognized kinds send nothing and auto-advance
		return false, nil
	}
}

// executeButtonNode partitions the configured buttons: reply buttons go
// out as interactive buttons (gateway ceiling 3, overflow truncated),
// link and phone buttons have no interactive counterpart and are appended
// to the body as plain text lines, and a flow button is sent as its own
// flow-launch message. Button nodes always wait for a response, including
// the degenerate only-links case.
//
// Interactive ids are minted from each button's index in the full node
// list, not the reply-only subset, so a tapped button_reply and a typed
// label match resolve to the same edge handle.
func (e *WorkflowEngineImpl) executeButtonNode(ctx context.Context, vendor *models.Vendor, conversation *models.Conversation, lead *models.Lead, node *models.WorkflowNode) error {
	var reply []services.InteractiveButton
	var flowButtons []models.NodeButton
	body := node.Body

	for i, btn := range node.Buttons {
		switch btn.Kind {
		case "reply":
			reply = append(reply, services.InteractiveButton{ID: fmt.Sprintf("btn-%d", i), Label: btn.Label})
		case "url":
			body = fmt.Sprintf("%s\n%s: %s", body, btn.Label, btn.URL)
		case "phone":
			body = fmt.Sprintf("%s\n%s: %s", body, btn.Label, btn.Phone)
		case "flow":
			flowButtons = append(flowButtons, btn)
		default:
			log.Printf("[WorkflowEngine] node %s has button with unknown kind %q, skipped", node.ID, btn.Kind)
		}
	}

	if len(reply) > maxInteractiveButtons {
		log.Printf("[WorkflowEngine] node %s has %d reply buttons, truncating to %d", node.ID, len(reply), maxInteractiveButtons)
		reply = reply[:maxInteractiveButtons]
	}

	if len(reply) > 0 {
		if _, err := e.sender.SendButtons(ctx, vendor, conversation, lead, body, reply); err != nil {
			return err
		}
	} else if len(flowButtons) == 0 && body != "" {
		if _, err := e.sender.SendText(ctx, vendor, conversation, lead, body); err != nil {
			return err
		}
	}

	for _, btn := range flowButtons {
		flow, err := e.flowRepo.ByRemoteFlowID(ctx, btn.FlowID)
		if err != nil {
			return NewBusinessError("FLOW_LOOKUP_FAILED", "failed to load flow for button", err)
		}
		if flow == nil {
			log.Printf("[WorkflowEngine] node %s references unknown flow %q, skipped", node.ID, btn.FlowID)
			continue
		}
		e.pace()
		if _, err := e.sender.SendFlowLaunch(ctx, vendor, conversation, lead, btn.Label, flow); err != nil {
			return err
		}
	}

	return nil
}

func (e *WorkflowEngineImpl) closeSession(ctx context.Context, session *models.WorkflowSession, status models.WorkflowSessionStatus) {
	session.Status = status
	if err := e.sessionRepo.Update(ctx, session); err != nil {
		log.Printf("[WorkflowEngine] failed to close session %d as %s: %v", session.ID, status, err)
	}
}

func (e *WorkflowEngineImpl) logTriggered(ctx context.Context, vendor *models.Vendor, workflow *models.Workflow, message *models.Message) {
	meta, _ := json.Marshal(map[string]any{
		"workflow_uuid": workflow.UUID.String(),
		"workflow_name": workflow.Name,
	})
	entry := &models.ActivityLog{
		VendorID:          &vendor.ID,
		ExternalMessageID: message.ExternalID,
		Action:            models.ActivityActionWorkflowTriggered,
		Description:       fmt.Sprintf("workflow %s triggered", workflow.Name),
		Success:           utils.ToPtr(true),
		Metadata:          meta,
	}
	if err := e.activityRepo.Save(ctx, entry); err != nil {
		log.Printf("[WorkflowEngine] failed to write trigger audit log: %v", err)
	}
}

// pace inserts the fixed inter-send delay that keeps automated replies
// from arriving as a burst.
func (e *WorkflowEngineImpl) pace() {
	if e.sendDelay > 0 {
		time.Sleep(e.sendDelay)
	}
}

// matchButtonLabel maps a normalized inbound text onto a button handle by
// case-insensitive exact label match. Handles index the full button list,
// the same way executeButtonNode mints interactive ids, so a typed label
// and a tapped button_reply land on the same handle. Only reply buttons
// participate; link and phone labels are body text, not choices.
func matchButtonLabel(buttons []models.NodeButton, normalized string) string {
	for i, btn := range buttons {
		if btn.Kind != "reply" {
			continue
		}
		if utils.NormalizeText(btn.Label) == normalized {
			return fmt.Sprintf("btn-%d", i)
		}
	}
	return ""
}

// matchListItem maps a normalized inbound text onto a list-item handle by
// case-insensitive exact title match.
func matchListItem(items []models.NodeListItem, normalized string) string {
	for i, item := range items {
		if utils.NormalizeText(item.Title) == normalized {
			return fmt.Sprintf("item-%d", i)
		}
	}
	return ""
}
