package dto

// WebhookPayload is the envelope the messaging gateway posts to the
// webhook endpoint. One payload may batch several entries, each with
// several changes; every change is processed independently.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups the changes of one business account
type WebhookEntry struct {
	ID      string          `json:"id"` // business account id
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange is one notification. Field selects the payload kind:
// "messages" for inbound messages and status reports,
// "message_template_status_update" for template review results.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue carries the change payload. Exactly one of Messages,
// Statuses, or the template status fields is populated.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product,omitempty"`
	Metadata         *WebhookMetadata `json:"metadata,omitempty"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []WebhookMessage `json:"messages,omitempty"`
	Statuses         []WebhookStatus  `json:"statuses,omitempty"`

	// Template review fields
	Event               string `json:"event,omitempty"` // APPROVED, REJECTED, PENDING
	MessageTemplateName string `json:"message_template_name,omitempty"`
}

// WebhookMetadata identifies the vendor phone number the change belongs to
type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WebhookContact carries the sender's profile
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WebhookMessage is one inbound message
type WebhookMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"` // text, image, document, audio, video, interactive, button
	Text        *WebhookText        `json:"text,omitempty"`
	Image       *WebhookImage       `json:"image,omitempty"`
	Document    *WebhookMedia       `json:"document,omitempty"`
	Audio       *WebhookMedia       `json:"audio,omitempty"`
	Video       *WebhookMedia       `json:"video,omitempty"`
	Interactive *WebhookInteractive `json:"interactive,omitempty"`
	Button      *WebhookButton      `json:"button,omitempty"`
}

// WebhookText is the body of a text message
type WebhookText struct {
	Body string `json:"body"`
}

// WebhookImage references gateway-hosted media; the bytes must be
// downloaded with the vendor token before the gateway expires them
type WebhookImage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// WebhookMedia references gateway-hosted binary content of the non-image
// subtypes; documents additionally carry the sender's filename
type WebhookMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// WebhookInteractive is a reply to an interactive message: a tapped
// button, a chosen list row, or a completed encrypted form
type WebhookInteractive struct {
	Type        string              `json:"type"` // button_reply, list_reply, nfm_reply
	ButtonReply *WebhookButtonReply `json:"button_reply,omitempty"`
	ListReply   *WebhookListReply   `json:"list_reply,omitempty"`
	NFMReply    *WebhookNFMReply    `json:"nfm_reply,omitempty"`
}

// WebhookButtonReply identifies the tapped reply button by its handle id
type WebhookButtonReply struct {
	ID    string `json:"id"` // "btn-0"
	Title string `json:"title"`
}

// WebhookListReply identifies the chosen list row by its handle id
type WebhookListReply struct {
	ID    string `json:"id"` // "item-2"
	Title string `json:"title"`
}

// WebhookNFMReply carries the final submission of an encrypted form
type WebhookNFMReply struct {
	Name         string `json:"name"`
	Body         string `json:"body"`
	ResponseJSON string `json:"response_json"`
}

// WebhookButton is a tapped quick-reply button of a template message
type WebhookButton struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// WebhookStatus is one delivery status report for an outbound message
type WebhookStatus struct {
	ID          string               `json:"id"`     // gateway message id
	Status      string               `json:"status"` // sent, delivered, read, failed
	Timestamp   string               `json:"timestamp"`
	RecipientID string               `json:"recipient_id"`
	Errors      []WebhookStatusError `json:"errors,omitempty"`
}

// WebhookStatusError details a failed delivery
type WebhookStatusError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}
