// Package businessflow contains the core business logic and use cases for messaging workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Vendor-related errors
	ErrVendorNotFound      = errors.New("vendor not found")
	ErrVendorDisconnected  = errors.New("vendor is disconnected")
	ErrVendorAlreadyExists = errors.New("vendor with this phone number id already exists")

	// Conversation and messaging errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSessionWindowClosed  = errors.New("messaging session window is closed")
	ErrMessageNotFound      = errors.New("message not found")
	ErrDuplicateMessage     = errors.New("message already processed")

	// Campaign-related errors
	ErrCampaignNotFound           = errors.New("campaign not found")
	ErrCampaignAccessDenied       = errors.New("campaign access denied")
	ErrCampaignRecipientsRequired = errors.New("campaign recipients are required")
	ErrCampaignAlreadyQueued      = errors.New("campaign has already been queued")

	// Workflow-related errors
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrWorkflowAccessDenied = errors.New("workflow access denied")
	ErrWorkflowInvalidGraph = errors.New("workflow graph is invalid")

	// Flow-related errors
	ErrFlowNotFound         = errors.New("flow not found")
	ErrFlowTokenInvalid     = errors.New("flow token is invalid")
	ErrFlowResponseNotFound = errors.New("flow response not found")
	ErrFlowDecryptionFailed = errors.New("flow request decryption failed")
	ErrFlowKeysMissing      = errors.New("flow encryption keys are not provisioned")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsVendorNotFound(err error) bool {
	return errors.Is(err, ErrVendorNotFound)
}

func IsVendorDisconnected(err error) bool {
	return errors.Is(err, ErrVendorDisconnected)
}

func IsVendorAlreadyExists(err error) bool {
	return errors.Is(err, ErrVendorAlreadyExists)
}

func IsConversationNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound)
}

func IsSessionWindowClosed(err error) bool {
	return errors.Is(err, ErrSessionWindowClosed)
}

func IsMessageNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound)
}

func IsDuplicateMessage(err error) bool {
	return errors.Is(err, ErrDuplicateMessage)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsCampaignRecipientsRequired(err error) bool {
	return errors.Is(err, ErrCampaignRecipientsRequired)
}

func IsCampaignAlreadyQueued(err error) bool {
	return errors.Is(err, ErrCampaignAlreadyQueued)
}

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsWorkflowAccessDenied(err error) bool {
	return errors.Is(err, ErrWorkflowAccessDenied)
}

func IsWorkflowInvalidGraph(err error) bool {
	return errors.Is(err, ErrWorkflowInvalidGraph)
}

func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

func IsFlowTokenInvalid(err error) bool {
	return errors.Is(err, ErrFlowTokenInvalid)
}

func IsFlowResponseNotFound(err error) bool {
	return errors.Is(err, ErrFlowResponseNotFound)
}

func IsFlowDecryptionFailed(err error) bool {
	return errors.Is(err, ErrFlowDecryptionFailed)
}

func IsFlowKeysMissing(err error) bool {
	return errors.Is(err, ErrFlowKeysMissing)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
