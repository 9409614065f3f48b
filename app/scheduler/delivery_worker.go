// Package scheduler
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	businessflow "github.com/chatrasa/chatrasa/business_flow"
	"github.com/chatrasa/chatrasa/config"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/chatrasa/chatrasa/utils"

	"github.com/chatrasa/chatrasa/app/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	deliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Outbound send attempts partitioned by outcome",
		},
		[]string{"outcome"}, // sent, retried, failed
	)

	deliveryClaimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_claim_conflicts_total",
			Help: "Messages lost to another worker instance's claim",
		},
	)
)

// DeliveryWorker is the single write path for queued outbound sends. It
// polls for the oldest sendable message, claims it with a lease, sends it
// through the gateway, and commits or reschedules the result. Multiple
// instances are safe: the conditional claim is the lock.
type DeliveryWorker struct {
	messageRepo      repository.MessageRepository
	vendorRepo       repository.VendorRepository
	conversationRepo repository.ConversationRepository
	leadRepo         repository.LeadRepository
	campaignRepo     repository.CampaignRepository
	gateway          services.GatewayClient
	credentials      services.CredentialCipher
	events           services.EventPublisher
	cfg              config.WorkerConfig
	limiter          *rate.Limiter
	logger           *log.Logger
}

// NewDeliveryWorker creates a new delivery worker instance.
func NewDeliveryWorker(
	messageRepo repository.MessageRepository,
	vendorRepo repository.VendorRepository,
	conversationRepo repository.ConversationRepository,
	leadRepo repository.LeadRepository,
	campaignRepo repository.CampaignRepository,
	gateway services.GatewayClient,
	credentials services.CredentialCipher,
	events services.EventPublisher,
	cfg config.WorkerConfig,
) *DeliveryWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 2 * time.Minute
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = 10
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 1
	}
	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = 30 * time.Second
	}

	w := &DeliveryWorker{
		messageRepo:      messageRepo,
		vendorRepo:       vendorRepo,
		conversationRepo: conversationRepo,
		leadRepo:         leadRepo,
		campaignRepo:     campaignRepo,
		gateway:          gateway,
		credentials:      credentials,
		events:           events,
		cfg:              cfg,
		limiter:          rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
	}
	w.initLogger()
	return w
}

// initLogger writes to stdout and a size-rotated worker log file
func (w *DeliveryWorker) initLogger() {
	out := io.Writer(os.Stdout)
	if w.cfg.LogFilePath != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   w.cfg.LogFilePath,
			MaxSize:    w.cfg.LogMaxSize,
			MaxBackups: w.cfg.LogMaxBackups,
			MaxAge:     w.cfg.LogMaxAge,
		})
	}
	w.logger = log.New(out, "worker ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the worker loop in a background goroutine and returns a
// stop function.
func (w *DeliveryWorker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()

		w.drain(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.drain(ctx)
			}
		}
	}()

	return cancel
}

// drain sends queued messages until the feed is empty or the context ends
func (w *DeliveryWorker) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		message, err := w.messageRepo.NextSendable(ctx, utils.UTCNow(), models.MaxSendRetries)
		if err != nil {
			w.logger.Printf("worker: failed to poll for sendable messages: %v", err)
			return
		}
		if message == nil {
			return
		}

		claimed, err := w.messageRepo.Claim(ctx, message.ID, utils.UTCNow().Add(w.cfg.ClaimLease))
		if err != nil {
			w.logger.Printf("worker: failed to claim message %d: %v", message.ID, err)
			return
		}
		if !claimed {
			// another instance got there first
			deliveryClaimConflicts.Inc()
			continue
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		if !w.process(ctx, message) {
			// back off before polling again so a persistently failing
			// message does not burn its whole retry budget in one drain
			w.pause(ctx, w.cfg.FailureBackoff)
			return
		}
	}
}

// process sends one claimed message and commits the outcome, reporting
// whether the attempt succeeded.
func (w *DeliveryWorker) process(ctx context.Context, message *models.Message) bool {
	externalID, err := w.attemptSend(ctx, message)
	if err != nil {
		w.handleFailure(ctx, message, err)
		return false
	}
	w.commitSent(ctx, message, externalID)
	return true
}

// pause sleeps for d or until the context ends, whichever comes first
func (w *DeliveryWorker) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// attemptSend validates the vendor, composes the payload for the message
// type, and sends it, returning the gateway-issued message id.
func (w *DeliveryWorker) attemptSend(ctx context.Context, message *models.Message) (string, error) {
	vendor, err := w.vendorRepo.ByID(ctx, message.VendorID)
	if err != nil {
		return "", fmt.Errorf("failed to load vendor %d: %w", message.VendorID, err)
	}
	if vendor == nil || !vendor.IsConnected() {
		return "", fmt.Errorf("vendor %d has no usable gateway credentials", message.VendorID)
	}
	token, err := w.credentials.Decrypt(vendor.AccessTokenEnc)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt vendor %d credentials: %w", vendor.ID, err)
	}
	creds := services.GatewayCredentials{PhoneNumberID: vendor.PhoneNumberID, AccessToken: token}

	phone, err := w.recipientPhone(ctx, message)
	if err != nil {
		return "", err
	}

	switch message.Type {
	case models.MessageTypeText:
		return w.gateway.SendText(ctx, creds, phone, message.Body)

	case models.MessageTypeImage:
		if message.Media == nil {
			return "", fmt.Errorf("image message %d has no media", message.ID)
		}
		return w.gateway.SendImage(ctx, creds, phone, message.Media.URL, message.Media.Caption)

	case models.MessageTypeTemplate:
		templateName := ""
		if message.TemplateName != nil {
			templateName = *message.TemplateName
		}
		spec := composeTemplateSpec(message.TemplateSpec, phone)
		return w.gateway.SendTemplate(ctx, creds, phone, templateName, spec)

	default:
		return "", fmt.Errorf("message %d has unsendable type %s", message.ID, message.Type)
	}
}

// recipientPhone resolves the counterparty of the message's conversation
func (w *DeliveryWorker) recipientPhone(ctx context.Context, message *models.Message) (string, error) {
	if message.Conversation != nil && message.Conversation.Lead != nil {
		return message.Conversation.Lead.Phone, nil
	}
	conversation, err := w.conversationRepo.ByID(ctx, message.ConversationID)
	if err != nil || conversation == nil {
		return "", fmt.Errorf("failed to load conversation %d: %w", message.ConversationID, err)
	}
	lead, err := w.leadRepo.ByID(ctx, conversation.LeadID)
	if err != nil || lead == nil {
		return "", fmt.Errorf("failed to load lead %d: %w", conversation.LeadID, err)
	}
	return lead.Phone, nil
}

// composeTemplateSpec clones the stored spec, minting a fresh flow token
// for every flow button. The stored FlowID names the remote form; the
// token it becomes on the wire must be unique per send.
func composeTemplateSpec(stored *models.TemplateSpec, phone string) *models.TemplateSpec {
	if stored == nil {
		return nil
	}
	spec := *stored
	if len(stored.Buttons) > 0 {
		spec.Buttons = make([]models.TemplateButtonSpec, len(stored.Buttons))
		copy(spec.Buttons, stored.Buttons)
		for i := range spec.Buttons {
			if spec.Buttons[i].Type == "flow" && spec.Buttons[i].FlowID != "" {
				spec.Buttons[i].FlowID = businessflow.MintFlowToken(spec.Buttons[i].FlowID, phone)
			}
		}
	}
	return &spec
}

// commitSent records a successful attempt: message sent with its gateway
// id, deliveries mirrored, conversation touched, campaign counter bumped.
func (w *DeliveryWorker) commitSent(ctx context.Context, message *models.Message, externalID string) {
	if err := w.messageRepo.Release(ctx, message.ID, models.MessageStatusSent, message.RetryCount, &externalID, nil); err != nil {
		w.logger.Printf("worker: failed to mark message %d sent: %v", message.ID, err)
		return
	}
	if err := w.messageRepo.UpdateDeliveriesStatus(ctx, message.ID, models.MessageStatusSent, &externalID); err != nil {
		w.logger.Printf("worker: failed to mirror sent onto deliveries of message %d: %v", message.ID, err)
	}
	if err := w.conversationRepo.TouchLastMessageAt(ctx, message.ConversationID, utils.UTCNow()); err != nil {
		w.logger.Printf("worker: failed to touch conversation %d: %v", message.ConversationID, err)
	}
	if message.CampaignID != nil {
		if err := w.campaignRepo.IncrementSent(ctx, *message.CampaignID); err != nil {
			w.logger.Printf("worker: failed to bump sent counter of campaign %d: %v", *message.CampaignID, err)
		}
	}

	deliveryAttemptsTotal.WithLabelValues("sent").Inc()
	w.logger.Printf("worker: message %d sent as %s", message.ID, externalID)

	w.events.Publish(ctx, services.Event{
		Kind:     services.EventMessageStatusChanged,
		VendorID: message.VendorID,
		Payload: map[string]any{
			"message_uuid": message.UUID.String(),
			"external_id":  externalID,
			"status":       string(models.MessageStatusSent),
		},
		Timestamp: utils.UTCNow(),
	})
}

// handleFailure reschedules the message under the retry ceiling or
// finalizes it as failed; a credential rejection additionally flips the
// vendor to error so no further sends burn against a dead token.
func (w *DeliveryWorker) handleFailure(ctx context.Context, message *models.Message, sendErr error) {
	errText := sendErr.Error()
	w.logger.Printf("worker: send attempt %d for message %d failed: %v", message.RetryCount+1, message.ID, sendErr)

	if services.IsCredentialError(sendErr) {
		if err := w.vendorRepo.UpdateConnectionStatus(ctx, message.VendorID, models.VendorConnectionStatusError); err != nil {
			w.logger.Printf("worker: failed to flag vendor %d credentials as rejected: %v", message.VendorID, err)
		} else {
			w.logger.Printf("worker: vendor %d flagged as error after credential rejection", message.VendorID)
		}
	}

	if message.RetryCount < models.MaxSendRetries {
		if err := w.messageRepo.Release(ctx, message.ID, models.MessageStatusQueued, message.RetryCount+1, nil, &errText); err != nil {
			w.logger.Printf("worker: failed to requeue message %d: %v", message.ID, err)
		}
		deliveryAttemptsTotal.WithLabelValues("retried").Inc()
		return
	}

	if err := w.messageRepo.Release(ctx, message.ID, models.MessageStatusFailed, message.RetryCount, nil, &errText); err != nil {
		w.logger.Printf("worker: failed to finalize message %d: %v", message.ID, err)
		return
	}
	if err := w.messageRepo.UpdateDeliveriesStatus(ctx, message.ID, models.MessageStatusFailed, nil); err != nil {
		w.logger.Printf("worker: failed to mirror failed onto deliveries of message %d: %v", message.ID, err)
	}
	if message.CampaignID != nil {
		if err := w.campaignRepo.IncrementFailed(ctx, *message.CampaignID); err != nil {
			w.logger.Printf("worker: failed to bump failed counter of campaign %d: %v", *message.CampaignID, err)
		}
	}
	deliveryAttemptsTotal.WithLabelValues("failed").Inc()
}
